// Package commands contains the sub-commands of the simplestorage CLI.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/chain/evm/provider"
	"github.com/ans-sigalas/simplestorage/config"
	"github.com/ans-sigalas/simplestorage/engine/cli"
	"github.com/ans-sigalas/simplestorage/pkg/logger"
	"github.com/ans-sigalas/simplestorage/verify/etherscan"
)

// ChainLoader connects to the chain described by cfg. The returned function releases the
// connection and must be called once the chain is no longer used.
type ChainLoader func(ctx context.Context, lggr logger.Logger, cfg *config.Config, useEncryptedKey bool) (evm.Chain, func(), error)

// Commands provides the sub-commands of the simplestorage CLI.
type Commands struct {
	lggr logger.Logger

	loadChain     ChainLoader
	clientOpts    []func(*evm.Client)
	etherscanOpts []etherscan.Option
}

// NewCommands creates a new instance of Commands which talks to the node configured in the
// environment.
func NewCommands(lggr logger.Logger) *Commands {
	return &Commands{
		lggr:      lggr,
		loadChain: LoadRPCChain,
	}
}

// All returns every sub-command.
func (c Commands) All() []*cobra.Command {
	return []*cobra.Command{
		c.NewDeployCmd(),
		c.NewEncryptKeyCmd(),
		c.NewBlockNumberCmd(),
		c.NewVerifyCmd(),
		c.NewVerifyBatchCmd(),
	}
}

var rootLong = cli.LongDesc(`
	Deploy and interact with the SimpleStorage contract.

	Settings are read from the environment, an optional .env file and an optional config file.
	Environment variables override the config file.
`)

// NewRootCmd creates the root command carrying the flags shared by every sub-command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simplestorage",
		Short:         "SimpleStorage deployment scripts",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or TOML config file")
	cmd.PersistentFlags().String("env-file", ".env", "Path to a .env file, skipped when missing")

	return cmd
}

// loadConfig loads the .env file and the config file named by the persistent flags.
func (c Commands) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	c.lggr.Debugw("Loaded config", "config", cfg.Redacted())

	return cfg, nil
}

// LoadRPCChain is the ChainLoader used by the CLI. It validates the connection and wallet
// settings, builds the signer and connects to the configured RPC endpoints.
func LoadRPCChain(ctx context.Context, lggr logger.Logger, cfg *config.Config, useEncryptedKey bool) (evm.Chain, func(), error) {
	if err := cfg.ValidateRPC(); err != nil {
		return evm.Chain{}, nil, err
	}
	if err := cfg.ValidateWallet(useEncryptedKey); err != nil {
		return evm.Chain{}, nil, err
	}

	signer, err := signerFromConfig(cfg, useEncryptedKey)
	if err != nil {
		return evm.Chain{}, nil, err
	}

	p := provider.NewRPCChainProvider(provider.RPCChainProviderConfig{
		DeployerTransactorGen: signer,
		RPCURLs:               rpcURLs(cfg),
		ConfirmFunctor: provider.ConfirmFuncGeth(cfg.Deploy.WaitMinedTimeout,
			provider.WithConfirmations(cfg.Deploy.Confirmations),
		),
		Logger: lggr,
	})

	chain, err := p.Initialize(ctx)
	if err != nil {
		return evm.Chain{}, nil, fmt.Errorf("failed to initialize chain: %w", err)
	}

	return chain, p.Close, nil
}

// signerFromConfig picks the signing identity: the encrypted key when requested, otherwise a
// KMS key when configured, otherwise the raw private key.
func signerFromConfig(cfg *config.Config, useEncryptedKey bool) (provider.SignerGenerator, error) {
	var opts []provider.GeneratorOption
	if cfg.Deploy.GasLimit > 0 {
		opts = append(opts, provider.WithGasLimit(cfg.Deploy.GasLimit))
	}

	w := cfg.Wallet
	switch {
	case useEncryptedKey:
		return provider.TransactorFromKeystoreFile(w.EncryptedKeyPath, w.Password, opts...), nil
	case w.KMS.KeyID != "":
		return provider.TransactorFromKMS(w.KMS.KeyID, w.KMS.KeyRegion, w.KMS.AWSProfile, opts...)
	case w.PrivateKey != "":
		return provider.TransactorFromRaw(w.PrivateKey, opts...), nil
	default:
		return nil, errors.New("no signing key configured")
	}
}

func rpcURLs(cfg *config.Config) []string {
	return append([]string{cfg.RPC.URL}, cfg.RPC.BackupURLs...)
}
