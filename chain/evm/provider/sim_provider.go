package provider

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/ans-sigalas/simplestorage/chain/evm"
)

var (
	// simChainID is the chain ID for the simulated EVM chain. This is always set to 1337 across
	// all instances of EVM Simulated Chains.
	simChainID = params.AllDevChainProtocolChanges.ChainID
	// prefundAmountWei is the amount of wei the deployer account is prefunded with, 1,000,000 ETH.
	prefundAmountWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

// SimChainProviderConfig holds the configuration to initialize the SimChainProvider.
type SimChainProviderConfig struct {
	// Optional: DeployerKey is the key of the prefunded deployer account. A random key is
	// generated when nil.
	DeployerKey *ecdsa.PrivateKey
	// Optional: BlockTime configures the time between blocks being committed. By default, this is
	// set to 0s, meaning that blocks are only committed when a transaction is confirmed or when
	// the Commit method of the SimClient is called.
	BlockTime time.Duration
}

// SimChainProvider manages a simulated EVM chain that is backed by go-ethereum's in memory
// simulated backend.
type SimChainProvider struct {
	t      *testing.T
	config SimChainProviderConfig

	client *SimClient
	chain  *evm.Chain
}

// NewSimChainProvider creates a new SimChainProvider with the given configuration.
func NewSimChainProvider(t *testing.T, config SimChainProviderConfig) *SimChainProvider {
	t.Helper()

	return &SimChainProvider{
		t:      t,
		config: config,
	}
}

// Initialize sets up the simulated chain with a prefunded deployer account. It returns an
// initialized evm.Chain instance that can be used to interact with the simulated chain.
func (p *SimChainProvider) Initialize(_ context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	key := p.config.DeployerKey
	if key == nil {
		var err error
		key, err = crypto.GenerateKey()
		require.NoError(p.t, err, "failed to generate deployer key")
	}

	adminTransactor, err := bind.NewKeyedTransactorWithChainID(key, simChainID)
	require.NoError(p.t, err)

	genesis := types.GenesisAlloc{
		adminTransactor.From: {Balance: prefundAmountWei},
	}

	backend := simulated.NewBackend(genesis, simulated.WithBlockGasLimit(50000000))
	backend.Commit() // Commit the genesis block
	p.t.Cleanup(func() { _ = backend.Close() })

	if p.config.BlockTime > 0 {
		startAutoMine(p.t, backend, p.config.BlockTime)
	}

	client := NewSimClient(p.t, backend)

	p.client = client
	p.chain = &evm.Chain{
		ChainID:     simChainID,
		Client:      client,
		DeployerKey: adminTransactor,
		Confirm: func(tx *types.Transaction) (uint64, error) {
			if tx == nil {
				return 0, fmt.Errorf("tx was nil, nothing to confirm for chain %s", simChainID)
			}

			// Ensure the transaction is mined by committing a new block
			client.Commit()

			receipt, err := func() (*types.Receipt, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
				defer cancel()

				return bind.WaitMined(ctx, client, tx)
			}()
			if err != nil {
				return 0, fmt.Errorf("tx %s failed to confirm for chain %s: %w",
					tx.Hash().Hex(), simChainID, err,
				)
			}

			if receipt.Status == types.ReceiptStatusFailed {
				reason, err := getErrorReasonFromTx(
					p.t.Context(), client, adminTransactor.From, tx, receipt,
				)
				if err == nil && reason != "" {
					return 0, fmt.Errorf("tx %s reverted for chain %s: %s",
						tx.Hash().Hex(), simChainID, reason,
					)
				}

				return 0, fmt.Errorf("tx %s reverted, could not decode error reason for chain %s",
					tx.Hash().Hex(), simChainID,
				)
			}

			return receipt.BlockNumber.Uint64(), nil
		},
	}

	return *p.chain, nil
}

// Name returns the name of the SimChainProvider.
func (*SimChainProvider) Name() string {
	return "Simulated EVM Chain Provider"
}

// BlockChain returns the simulated chain instance managed by this provider. You must call Initialize
// before using this method to ensure the chain is properly set up.
func (p *SimChainProvider) BlockChain() evm.Chain {
	return *p.chain
}

// SimClient returns the client of the simulated chain, which can commit blocks. You must call
// Initialize first.
func (p *SimChainProvider) SimClient() *SimClient {
	return p.client
}

// startAutoMine triggers the simulated backend to create a new block at intervals defined by
// `blockTime`. After the test is done, it stops the mining goroutine.
func startAutoMine(t *testing.T, backend *simulated.Backend, blockTime time.Duration) {
	t.Helper()

	ctx := t.Context()
	ticker := time.NewTicker(blockTime)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				backend.Commit()
			case <-ctx.Done():
				return
			}
		}
	}()
}
