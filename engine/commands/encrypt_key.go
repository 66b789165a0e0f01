package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ans-sigalas/simplestorage/chain/evm/keystore"
	"github.com/ans-sigalas/simplestorage/config"
	"github.com/ans-sigalas/simplestorage/engine/cli"
)

var (
	encryptKeyLong = cli.LongDesc(`
		Encrypt PRIVATE_KEY with PRIVATE_KEY_PASSWORD into a keystore JSON file.

		The file can then be used by deploy --encrypted-key, after which PRIVATE_KEY can be
		removed from the environment. An existing file is never overwritten unless --force is
		set.
	`)
	encryptKeyExample = cli.Examples(`
		PRIVATE_KEY=0x... PRIVATE_KEY_PASSWORD=... simplestorage encrypt-key

		simplestorage encrypt-key --out ./keys/deployer.json --force
	`)
)

type encryptKeyFlags struct {
	out   string
	force bool
	light bool
}

// NewEncryptKeyCmd creates the encrypt-key command.
func (c Commands) NewEncryptKeyCmd() *cobra.Command {
	var f encryptKeyFlags

	cmd := cobra.Command{
		Use:     "encrypt-key",
		Short:   "Encrypt the private key at rest",
		Long:    encryptKeyLong,
		Example: encryptKeyExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			return c.runEncryptKey(cmd.OutOrStdout(), cfg, f)
		},
	}

	cmd.Flags().StringVarP(&f.out, "out", "o", "",
		"Output path, defaults to the configured encrypted key path ("+config.DefaultEncryptedKeyPath+")")
	cmd.Flags().BoolVar(&f.force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&f.light, "light", false, "Use light scrypt parameters, faster but weaker")

	return &cmd
}

func (c Commands) runEncryptKey(out io.Writer, cfg *config.Config, f encryptKeyFlags) error {
	if cfg.Wallet.PrivateKey == "" {
		return config.ErrMissingKey
	}
	if cfg.Wallet.Password == "" {
		return config.ErrMissingPassword
	}

	path := f.out
	if path == "" {
		path = cfg.Wallet.EncryptedKeyPath
	}

	strength := keystore.Standard
	if f.light {
		strength = keystore.Light
	}

	data, err := keystore.EncryptHex(cfg.Wallet.PrivateKey, cfg.Wallet.Password, strength)
	if err != nil {
		return err
	}

	addr, err := keystore.Address(data)
	if err != nil {
		return err
	}

	if err = keystore.WriteFile(path, data, f.force); err != nil {
		return err
	}

	c.lggr.Infow("Encrypted key written", "address", addr.Hex(), "path", path)
	fmt.Fprintf(out, "Encrypted key for %s written to %s\n", addr.Hex(), path)

	return nil
}
