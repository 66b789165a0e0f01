package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/pkg/logger"
)

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Required: A generator for the deployer key. Use TransactorFromRaw for a plain private key,
	// TransactorFromKeystoreFile for an encrypted key, or TransactorFromKMS for a KMS key.
	DeployerTransactorGen SignerGenerator
	// Required: At least one RPC URL must be provided to connect to the EVM node. The first
	// healthy URL is used as primary and the rest as backups.
	RPCURLs []string
	// Required: ConfirmFunctor is a type that generates a confirmation function for transactions.
	// Use ConfirmFuncGeth.
	ConfirmFunctor ConfirmFunctor
	// Optional: ExpectedChainID makes Initialize fail when the node reports a different chain ID.
	// Zero disables the check.
	ExpectedChainID uint64
	// Optional: ClientOpts are applied to the evm.Client created by the provider.
	ClientOpts []func(client *evm.Client)
	// Optional: Logger is the logger to use for the RPCChainProvider. If not provided, a default
	// logger will be used.
	Logger logger.Logger
}

// validate checks if the RPCChainProviderConfig is valid.
func (c RPCChainProviderConfig) validate() error {
	if c.DeployerTransactorGen == nil {
		return errors.New("deployer transactor generator is required")
	}
	if c.ConfirmFunctor == nil {
		return errors.New("confirm functor is required")
	}
	if len(c.RPCURLs) == 0 {
		return errors.New("at least one RPC is required")
	}

	return nil
}

// RPCChainProvider is a chain provider that provides a chain that connects to an EVM node via RPC.
type RPCChainProvider struct {
	config RPCChainProviderConfig

	client *evm.Client
	chain  *evm.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider with the given configuration.
func NewRPCChainProvider(config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		config: config,
	}
}

// Initialize connects to the node, reads its chain ID and sets up the deployer key and the
// confirmation function. It returns the initialized chain or an error if initialization fails.
func (p *RPCChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	// Set up the logger if not provided
	if p.config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return evm.Chain{}, fmt.Errorf("failed to create default logger: %w", err)
		}
		p.config.Logger = lggr
	}

	// Validate the provider configuration
	if err := p.config.validate(); err != nil {
		return evm.Chain{}, fmt.Errorf("failed to validate provider config: %w", err)
	}

	client, err := evm.NewClient(ctx, p.config.Logger, p.config.RPCURLs, p.config.ClientOpts...)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to create client: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()

		return evm.Chain{}, fmt.Errorf("failed to get chain ID from node: %w", err)
	}
	if p.config.ExpectedChainID != 0 && (!chainID.IsUint64() || chainID.Uint64() != p.config.ExpectedChainID) {
		client.Close()

		return evm.Chain{}, fmt.Errorf("node reports chain ID %s, expected %d", chainID, p.config.ExpectedChainID)
	}

	// Generate the deployer key using the provided transactor generator
	deployerKey, err := p.config.DeployerTransactorGen.Generate(chainID)
	if err != nil {
		client.Close()

		return evm.Chain{}, fmt.Errorf("failed to generate deployer key: %w", err)
	}

	// Setup the confirm function
	confirmFunc, err := p.config.ConfirmFunctor.Generate(ctx, chainID, client, deployerKey.From)
	if err != nil {
		client.Close()

		return evm.Chain{}, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	p.client = client
	p.chain = &evm.Chain{
		ChainID:     chainID,
		Client:      client,
		DeployerKey: deployerKey,
		Confirm:     confirmFunc,
	}

	return *p.chain, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "EVM RPC Chain Provider"
}

// BlockChain returns the chain instance managed by this provider. You must call Initialize
// before using this method to ensure the chain is properly set up.
func (p *RPCChainProvider) BlockChain() evm.Chain {
	return *p.chain
}

// Close releases the RPC connections. It is a no-op before Initialize.
func (p *RPCChainProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
