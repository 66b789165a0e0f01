package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ConfirmFunc is a function that takes a transaction, waits for the transaction to be confirmed,
// and returns the block number it was included in.
type ConfirmFunc func(tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// For EVM specifically we can use existing geth interfaces to abstract chain clients.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Chain is a connection to a single EVM chain together with the identity that signs for it.
type Chain struct {
	// ChainID is the EIP-155 chain ID reported by the node.
	ChainID *big.Int

	Client OnchainClient
	// DeployerKey signs every transaction sent by this tool. The Signer may be backed by a raw
	// key, an encrypted keystore or KMS.
	DeployerKey *bind.TransactOpts
	Confirm     ConfirmFunc
}

// ChainSelector returns the chain selector of the chain, or 0 for chains unknown to
// chain-selectors (local devnets, for example).
func (c Chain) ChainSelector() uint64 {
	details, ok := c.details()
	if !ok {
		return 0
	}

	return details.ChainSelector
}

// Name returns the chain-selectors name of the chain, falling back to "evm-<chain id>".
func (c Chain) Name() string {
	details, ok := c.details()
	if !ok || details.ChainName == "" {
		return fmt.Sprintf("evm-%s", c.chainIDString())
	}

	return details.ChainName
}

// String returns "<name> (chain id <id>)".
func (c Chain) String() string {
	return fmt.Sprintf("%s (chain id %s)", c.Name(), c.chainIDString())
}

// IsChainID reports whether the chain has the given chain ID.
func (c Chain) IsChainID(id uint64) bool {
	return c.ChainID != nil && c.ChainID.IsUint64() && c.ChainID.Uint64() == id
}

func (c Chain) details() (chainsel.ChainDetails, bool) {
	if c.ChainID == nil {
		return chainsel.ChainDetails{}, false
	}

	details, err := chainsel.GetChainDetailsByChainIDAndFamily(c.ChainID.String(), chainsel.FamilyEVM)
	if err != nil {
		return chainsel.ChainDetails{}, false
	}

	return details, true
}

func (c Chain) chainIDString() string {
	if c.ChainID == nil {
		return "unknown"
	}

	return c.ChainID.String()
}
