package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/config"
	"github.com/ans-sigalas/simplestorage/engine/cli"
	"github.com/ans-sigalas/simplestorage/verify/etherscan"
)

var (
	verifyLong = cli.LongDesc(`
		Verify a deployed SimpleStorage contract on an Etherscan compatible explorer.

		The source file, contract name, compiler version and optimizer runs are taken from the
		etherscan section of the config. A contract which is already verified counts as a
		success.
	`)
	verifyExample = cli.Examples(`
		simplestorage verify --address 0x5FbDB2315678afecb367f032d93F642f64180aa3
	`)
	verifyBatchLong = cli.LongDesc(`
		Verify every contract listed in a TOML file. Fields missing from an entry are taken from
		the etherscan section of the config.

		Every contract is attempted and a table with the outcome per contract is printed. The
		command fails if any of them failed.
	`)
	verifyBatchExample = cli.Examples(`
		simplestorage verify-batch --contracts contracts.toml
	`)
)

// NewVerifyCmd creates the verify command.
func (c Commands) NewVerifyCmd() *cobra.Command {
	var address string

	cmd := cobra.Command{
		Use:     "verify",
		Short:   "Verify a deployed contract on Etherscan",
		Long:    verifyLong,
		Example: verifyExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			return c.verifyContract(cmd.Context(), cmd.OutOrStdout(), cfg, address)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Contract address to verify (required)")
	_ = cmd.MarkFlagRequired("address")

	return &cmd
}

// NewVerifyBatchCmd creates the verify-batch command.
func (c Commands) NewVerifyBatchCmd() *cobra.Command {
	var contractsPath string

	cmd := cobra.Command{
		Use:     "verify-batch",
		Short:   "Verify a list of contracts on Etherscan",
		Long:    verifyBatchLong,
		Example: verifyBatchExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			return c.verifyBatch(cmd.Context(), cmd.OutOrStdout(), cfg, contractsPath)
		},
	}

	cmd.Flags().StringVar(&contractsPath, "contracts", "", "TOML file listing the contracts (required)")
	_ = cmd.MarkFlagRequired("contracts")

	return &cmd
}

func (c Commands) verifyContract(ctx context.Context, out io.Writer, cfg *config.Config, address string) error {
	client, err := c.etherscanClient(cfg)
	if err != nil {
		return err
	}

	addr, err := evm.ParseAddress(address)
	if err != nil {
		return err
	}

	entry := defaultContract(cfg)
	entry.ContractAddress = addr.Hex()

	if _, err := c.verifyOne(ctx, client, entry); err != nil {
		return err
	}
	fmt.Fprintf(out, "Verified: %s\n", addr.Hex())

	return nil
}

func (c Commands) verifyBatch(ctx context.Context, out io.Writer, cfg *config.Config, path string) error {
	client, err := c.etherscanClient(cfg)
	if err != nil {
		return err
	}

	list, err := etherscan.ReadContractsList(path, defaultContract(cfg))
	if err != nil {
		return err
	}

	var errs []error
	rows := make([][]string, 0, len(list.Contracts))
	for _, entry := range list.Contracts {
		status, err := c.verifyOne(ctx, client, entry)
		if err != nil {
			c.lggr.Errorw("Verification failed", "address", entry.ContractAddress, "err", err)
			errs = append(errs, err)
			status = "failed"
		}
		rows = append(rows, []string{entry.ContractAddress, entry.ContractName, string(status)})
	}
	writeResultTable(out, rows)

	return errors.Join(errs...)
}

func (c Commands) verifyOne(ctx context.Context, client *etherscan.Client, entry etherscan.ContractToVerify) (etherscan.Status, error) {
	req, err := entry.Request()
	if err != nil {
		return "", err
	}

	return client.Verify(ctx, req)
}

func writeResultTable(out io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Address", "Contract", "Status"})
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

func (c Commands) etherscanClient(cfg *config.Config) (*etherscan.Client, error) {
	if err := cfg.ValidateEtherscan(); err != nil {
		return nil, err
	}

	opts := append([]etherscan.Option{etherscan.WithChainID(cfg.Etherscan.ChainID)}, c.etherscanOpts...)

	return etherscan.NewClient(c.lggr, cfg.Etherscan.URL, cfg.Etherscan.APIKey, opts...)
}

func defaultContract(cfg *config.Config) etherscan.ContractToVerify {
	return etherscan.ContractToVerify{
		ContractName:    cfg.Etherscan.ContractName,
		SourcePath:      cfg.Etherscan.SourcePath,
		CompilerVersion: cfg.Etherscan.CompilerVersion,
		OptimizerRuns:   cfg.Etherscan.OptimizerRuns,
	}
}
