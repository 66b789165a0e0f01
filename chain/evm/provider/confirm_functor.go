package provider

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ans-sigalas/simplestorage/chain/evm"
)

// ConfirmFunctor is an interface for creating a confirmation function for transactions on the
// EVM chain.
type ConfirmFunctor interface {
	// Generate returns a function that confirms transactions on the EVM chain.
	Generate(
		ctx context.Context, chainID *big.Int, client evm.OnchainClient, from common.Address,
	) (evm.ConfirmFunc, error)
}

// ConfirmFuncGeth returns a ConfirmFunctor that uses the Geth client to confirm transactions.
func ConfirmFuncGeth(waitMinedTimeout time.Duration, opts ...func(*confirmFuncGeth)) ConfirmFunctor {
	cf := &confirmFuncGeth{
		tickInterval:     1 * time.Second, // the same value we have in bind.WaitMined hardcoded in "go-ethereum"
		waitMinedTimeout: waitMinedTimeout,
		confirmations:    1,
	}
	for _, o := range opts {
		o(cf)
	}

	return cf
}

// WithTickInterval sets how often the node is polled for the receipt and new blocks.
func WithTickInterval(interval time.Duration) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.tickInterval = interval
	}
}

// WithConfirmations sets the number of blocks, counting the inclusion block, a transaction must
// be buried under before it is considered confirmed. Values below 1 are treated as 1.
func WithConfirmations(n uint64) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.confirmations = max(n, 1)
	}
}

// confirmFuncGeth implements the ConfirmFunctor interface which generates a confirmation function
// for transactions using the Geth client.
type confirmFuncGeth struct {
	tickInterval     time.Duration
	waitMinedTimeout time.Duration
	confirmations    uint64
}

// Generate returns a function that confirms transactions using the Geth client.
func (g *confirmFuncGeth) Generate(
	ctx context.Context, chainID *big.Int, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for chain %s", chainID)
		}

		ctxTimeout, cancel := context.WithTimeout(ctx, g.waitMinedTimeout)
		defer cancel()

		receipt, err := WaitMinedWithInterval(ctxTimeout, g.tickInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for chain %s: %w",
				tx.Hash().Hex(), chainID, err,
			)
		}
		if receipt == nil {
			return 0, fmt.Errorf("receipt was nil for tx %s for chain %s",
				tx.Hash().Hex(), chainID,
			)
		}

		blockNum := receipt.BlockNumber.Uint64()

		if receipt.Status == types.ReceiptStatusFailed {
			reason, err := getErrorReasonFromTx(ctxTimeout, client, from, tx, receipt)
			if err == nil && reason != "" {
				return 0, fmt.Errorf("tx %s reverted for chain %s: %s",
					tx.Hash().Hex(), chainID, reason,
				)
			}

			return blockNum, fmt.Errorf("tx %s reverted, could not decode error reason for chain %s",
				tx.Hash().Hex(), chainID,
			)
		}

		if g.confirmations > 1 {
			target := blockNum + g.confirmations - 1
			if err := WaitForBlock(ctxTimeout, g.tickInterval, client, target); err != nil {
				return blockNum, fmt.Errorf("tx %s mined in block %d but did not reach %d confirmations for chain %s: %w",
					tx.Hash().Hex(), blockNum, g.confirmations, chainID, err,
				)
			}
		}

		return blockNum, nil
	}, nil
}

// WaitMinedWithInterval is a custom function that allows to get receipts faster for networks with instant blocks
func WaitMinedWithInterval(ctx context.Context, tick time.Duration, b bind.DeployBackend, txHash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}

// BlockNumberer returns the number of the latest block.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// WaitForBlock polls the node every tick until the latest block is at least target.
func WaitForBlock(ctx context.Context, tick time.Duration, b BlockNumberer, target uint64) error {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()
	for {
		head, err := b.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-queryTicker.C:
		}
	}
}
