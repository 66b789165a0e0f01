package commands

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/chain/evm/provider"
	"github.com/ans-sigalas/simplestorage/config"
	"github.com/ans-sigalas/simplestorage/contracts/artifact"
	"github.com/ans-sigalas/simplestorage/contracts/simplestorage"
	"github.com/ans-sigalas/simplestorage/engine/cli"
)

// blockPollInterval is how often the head is polled while waiting for verification
// confirmations.
const blockPollInterval = 2 * time.Second

var (
	deployLong = cli.LongDesc(`
		Deploy SimpleStorage, read the stored value, store a new value and read it back.

		The contract is verified on Etherscan afterwards when the node is on the verification
		chain and an Etherscan API key is configured. A contract which is already verified
		counts as a success.
	`)
	deployExample = cli.Examples(`
		# Deploy with the raw key in PRIVATE_KEY
		simplestorage deploy

		# Deploy with the key written by encrypt-key
		simplestorage deploy --encrypted-key

		# Store 42 instead of 7 and skip verification
		simplestorage deploy --value 42 --verify=false
	`)
)

type deployFlags struct {
	encryptedKey    bool
	value           uint64
	verify          bool
	source          string
	compilerVersion string
	optimizerRuns   uint64
}

// NewDeployCmd creates the deploy command.
func (c Commands) NewDeployCmd() *cobra.Command {
	var f deployFlags

	cmd := cobra.Command{
		Use:     "deploy",
		Short:   "Deploy SimpleStorage and store a value",
		Long:    deployLong,
		Example: deployExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("source") {
				cfg.Etherscan.SourcePath = f.source
			}
			if cmd.Flags().Changed("compiler-version") {
				cfg.Etherscan.CompilerVersion = f.compilerVersion
			}
			if cmd.Flags().Changed("optimizer-runs") {
				cfg.Etherscan.OptimizerRuns = f.optimizerRuns
			}

			return c.runDeploy(cmd.Context(), cmd.OutOrStdout(), cfg, f)
		},
	}

	cmd.Flags().BoolVar(&f.encryptedKey, "encrypted-key", false,
		"Sign with the encrypted key file and PRIVATE_KEY_PASSWORD instead of PRIVATE_KEY")
	cmd.Flags().Uint64Var(&f.value, "value", 7, "Value passed to store")
	cmd.Flags().BoolVar(&f.verify, "verify", true, "Verify the contract on Etherscan after deploying")
	cmd.Flags().StringVar(&f.source, "source", "", "Solidity source submitted for verification")
	cmd.Flags().StringVar(&f.compilerVersion, "compiler-version", "",
		"Long form solc version used for verification, e.g. v0.8.8+commit.dddeac2f")
	cmd.Flags().Uint64Var(&f.optimizerRuns, "optimizer-runs", 0,
		"Optimizer runs used to compile the contract, 0 when the optimizer was disabled")

	return &cmd
}

func (c Commands) runDeploy(ctx context.Context, out io.Writer, cfg *config.Config, f deployFlags) error {
	art, err := loadArtifact(cfg.Artifacts)
	if err != nil {
		return err
	}

	chain, closeChain, err := c.loadChain(ctx, c.lggr, cfg, f.encryptedKey)
	if err != nil {
		return err
	}
	defer closeChain()

	c.lggr.Infow("Deploying, please wait...",
		"contract", art.Name, "chain", chain.String(), "deployer", chain.DeployerKey.From.Hex(),
	)

	contract, err := simplestorage.Deploy(ctx, chain, art)
	if err != nil {
		return err
	}
	c.lggr.Infow("Contract deployed",
		"address", contract.Address().Hex(), "tx", contract.DeployTx().Hash().Hex(),
	)
	fmt.Fprintf(out, "Contract address: %s\n", contract.Address().Hex())

	current, err := contract.Retrieve(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current value: %s\n", current)

	tx, block, err := contract.StoreAndWait(ctx, new(big.Int).SetUint64(f.value))
	if err != nil {
		return err
	}
	c.lggr.Infow("Stored value", "value", f.value, "tx", tx.Hash().Hex(), "block", block)

	updated, err := contract.Retrieve(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated value: %s\n", updated)

	if !f.verify {
		return nil
	}

	return c.verifyDeployment(ctx, out, cfg, chain, contract)
}

// verifyDeployment verifies the contract on Etherscan once the deployment has enough
// confirmations. It is skipped on chains other than the verification chain and when no API key
// is set.
func (c Commands) verifyDeployment(
	ctx context.Context, out io.Writer, cfg *config.Config, chain evm.Chain, contract *simplestorage.SimpleStorage,
) error {
	if !chain.IsChainID(cfg.Etherscan.ChainID) {
		c.lggr.Infow("Skipping verification, not on the verification chain",
			"chain", chain.String(), "verifyChainID", cfg.Etherscan.ChainID,
		)

		return nil
	}
	if cfg.Etherscan.APIKey == "" {
		c.lggr.Warn("Skipping verification, no Etherscan API key configured")

		return nil
	}

	if n := cfg.Deploy.VerifyConfirmations; n > 0 {
		receipt, err := chain.Client.TransactionReceipt(ctx, contract.DeployTx().Hash())
		if err != nil {
			return fmt.Errorf("failed to get deployment receipt: %w", err)
		}

		target := receipt.BlockNumber.Uint64() + n - 1
		c.lggr.Infow("Waiting for block confirmations before verifying", "confirmations", n, "block", target)

		if err = provider.WaitForBlock(ctx, blockPollInterval, chain.Client, target); err != nil {
			return fmt.Errorf("failed waiting for %d confirmations: %w", n, err)
		}
	}

	return c.verifyContract(ctx, out, cfg, contract.Address().Hex())
}

// loadArtifact prefers the Hardhat artifact when one is configured. HardhatPath may also name a
// solcjs .abi or .bin file.
func loadArtifact(cfg config.ArtifactsConfig) (*artifact.Artifact, error) {
	if cfg.HardhatPath != "" {
		return artifact.LoadAuto(cfg.HardhatPath)
	}

	return artifact.Load(cfg.ABIPath, cfg.BinPath)
}
