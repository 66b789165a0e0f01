package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/engine/cli"
)

var blockNumberExample = cli.Examples(`
	RPC_URL=http://127.0.0.1:8545 simplestorage block-number
`)

// NewBlockNumberCmd creates the block-number command, which prints the height of the chain.
func (c Commands) NewBlockNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "block-number",
		Short:   "Print the current block number",
		Example: blockNumberExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err = cfg.ValidateRPC(); err != nil {
				return err
			}

			client, err := evm.NewClient(cmd.Context(), c.lggr, rpcURLs(cfg), c.clientOpts...)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer client.Close()

			n, err := client.BlockNumber(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get block number: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Current block number: %d\n", n)

			return nil
		},
	}
}
