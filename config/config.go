package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultABIPath is the solcjs output name of the SimpleStorage interface descriptor.
	DefaultABIPath = "./SimpleStorage_sol_SimpleStorage.abi"
	// DefaultBinPath is the solcjs output name of the SimpleStorage bytecode.
	DefaultBinPath = "./SimpleStorage_sol_SimpleStorage.bin"
	// DefaultEncryptedKeyPath is where encrypt-key writes the keystore JSON.
	DefaultEncryptedKeyPath = "./.encryptedKey.json"
	// DefaultEtherscanURL is the Goerli Etherscan API endpoint.
	DefaultEtherscanURL = "https://api-goerli.etherscan.io/api"
	// DefaultVerifyChainID is the chain ID on which contracts are verified by default (Goerli).
	DefaultVerifyChainID = 5

	redacted = "<REDACTED>"
)

// RPCConfig is the configuration for connecting to the node.
type RPCConfig struct {
	URL        string   `mapstructure:"url" yaml:"url"`                 // The JSON-RPC endpoint URL
	BackupURLs []string `mapstructure:"backup_urls" yaml:"backup_urls"` // Fallback endpoints, tried in order
}

// KMSConfig is the configuration for an AWS KMS signing key.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type KMSConfig struct {
	KeyID      string `mapstructure:"key_id" yaml:"key_id"`           // Secret: AWS KMS Key ID
	KeyRegion  string `mapstructure:"key_region" yaml:"key_region"`   // Secret: AWS KMS Key Region (e.g. us-west-1)
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"` // Optional AWS profile name
}

// WalletConfig is the configuration for the signing identity.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type WalletConfig struct {
	PrivateKey       string    `mapstructure:"private_key" yaml:"private_key"`               // Secret: hex encoded private key
	Password         string    `mapstructure:"password" yaml:"password"`                     // Secret: password of the encrypted key
	EncryptedKeyPath string    `mapstructure:"encrypted_key_path" yaml:"encrypted_key_path"` // Path to the keystore JSON
	KMS              KMSConfig `mapstructure:"kms" yaml:"kms"`
}

// ArtifactsConfig points at the compiler output.
type ArtifactsConfig struct {
	ABIPath     string `mapstructure:"abi_path" yaml:"abi_path"`         // solcjs .abi file
	BinPath     string `mapstructure:"bin_path" yaml:"bin_path"`         // solcjs .bin file
	HardhatPath string `mapstructure:"hardhat_path" yaml:"hardhat_path"` // Hardhat artifact JSON, preferred when set
}

// DeployConfig controls how transactions are sent and awaited.
type DeployConfig struct {
	Confirmations       uint64        `mapstructure:"confirmations" yaml:"confirmations"`               // Blocks to wait for each transaction
	VerifyConfirmations uint64        `mapstructure:"verify_confirmations" yaml:"verify_confirmations"` // Blocks to wait before verification
	WaitMinedTimeout    time.Duration `mapstructure:"wait_mined_timeout" yaml:"wait_mined_timeout"`     // Upper bound of a single confirmation wait
	GasLimit            uint64        `mapstructure:"gas_limit" yaml:"gas_limit"`                       // Fixed gas limit, 0 to estimate
}

// EtherscanConfig is the configuration for the verification service.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type EtherscanConfig struct {
	APIKey          string `mapstructure:"api_key" yaml:"api_key"`                   // Secret: Etherscan API key
	URL             string `mapstructure:"url" yaml:"url"`                           // API endpoint
	ChainID         uint64 `mapstructure:"chain_id" yaml:"chain_id"`                 // Verification only runs on this chain
	SourcePath      string `mapstructure:"source_path" yaml:"source_path"`           // Flattened Solidity source
	ContractName    string `mapstructure:"contract_name" yaml:"contract_name"`       // Contract name in the source
	CompilerVersion string `mapstructure:"compiler_version" yaml:"compiler_version"` // e.g. v0.8.8+commit.dddeac2f
	OptimizerRuns   uint64 `mapstructure:"optimizer_runs" yaml:"optimizer_runs"`     // 0 disables the optimizer
}

// Config wraps the entire configuration.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Wallet    WalletConfig    `mapstructure:"wallet" yaml:"wallet"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Deploy    DeployConfig    `mapstructure:"deploy" yaml:"deploy"`
	Etherscan EtherscanConfig `mapstructure:"etherscan" yaml:"etherscan"`
}

var (
	ErrMissingRPCURL   = errors.New("rpc url is required (set SIMPLESTORAGE_RPC_URL or RPC_URL)")
	ErrMissingPassword = errors.New("private key password is required (set SIMPLESTORAGE_PRIVATE_KEY_PASSWORD or PRIVATE_KEY_PASSWORD)")
	ErrMissingKey      = errors.New("no signing key configured: set a private key, an encrypted key with password, or a KMS key")
	ErrMissingAPIKey   = errors.New("etherscan api key is required (set SIMPLESTORAGE_ETHERSCAN_API_KEY or ETHERSCAN_API_KEY)")
)

// Load loads the config from the file path, falling back to env vars if the file does not
// exist. If the file exists, any env vars that are set override the values loaded from the file.
// An empty path loads from the environment only.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if filePath != "" {
		v.SetConfigFile(filePath)

		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
			}
		}
	}

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	return Load("")
}

// LoadDotEnv loads the given .env files into the process environment. Variables that are
// already set are not overridden and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}

	return nil
}

var (
	// envBindings defines how environment variables map to configuration keys used by Viper.
	//
	// The first element in the list is the preferred environment variable name and the second
	// (if present) is the plain name used by existing tutorial .env files. Viper checks
	// each listed variable in order and uses the first one that is set.
	envBindings = map[string][]string{
		"rpc.url":                     {"SIMPLESTORAGE_RPC_URL", "RPC_URL"},
		"rpc.backup_urls":             {"SIMPLESTORAGE_RPC_BACKUP_URLS"},
		"wallet.private_key":          {"SIMPLESTORAGE_PRIVATE_KEY", "PRIVATE_KEY"},
		"wallet.password":             {"SIMPLESTORAGE_PRIVATE_KEY_PASSWORD", "PRIVATE_KEY_PASSWORD"},
		"wallet.encrypted_key_path":   {"SIMPLESTORAGE_ENCRYPTED_KEY_PATH"},
		"wallet.kms.key_id":           {"SIMPLESTORAGE_KMS_KEY_ID", "KMS_DEPLOYER_KEY_ID"},
		"wallet.kms.key_region":       {"SIMPLESTORAGE_KMS_KEY_REGION", "KMS_DEPLOYER_KEY_REGION"},
		"wallet.kms.aws_profile":      {"SIMPLESTORAGE_KMS_AWS_PROFILE", "AWS_PROFILE"},
		"artifacts.abi_path":          {"SIMPLESTORAGE_ABI_PATH"},
		"artifacts.bin_path":          {"SIMPLESTORAGE_BIN_PATH"},
		"artifacts.hardhat_path":      {"SIMPLESTORAGE_HARDHAT_ARTIFACT"},
		"deploy.confirmations":        {"SIMPLESTORAGE_CONFIRMATIONS"},
		"deploy.verify_confirmations": {"SIMPLESTORAGE_VERIFY_CONFIRMATIONS"},
		"deploy.wait_mined_timeout":   {"SIMPLESTORAGE_WAIT_MINED_TIMEOUT"},
		"deploy.gas_limit":            {"SIMPLESTORAGE_GAS_LIMIT"},
		"etherscan.api_key":           {"SIMPLESTORAGE_ETHERSCAN_API_KEY", "ETHERSCAN_API_KEY"},
		"etherscan.url":               {"SIMPLESTORAGE_ETHERSCAN_URL"},
		"etherscan.chain_id":          {"SIMPLESTORAGE_ETHERSCAN_CHAIN_ID"},
		"etherscan.source_path":       {"SIMPLESTORAGE_SOURCE_PATH"},
		"etherscan.contract_name":     {"SIMPLESTORAGE_CONTRACT_NAME"},
		"etherscan.compiler_version":  {"SIMPLESTORAGE_COMPILER_VERSION"},
		"etherscan.optimizer_runs":    {"SIMPLESTORAGE_OPTIMIZER_RUNS"},
	}

	defaults = map[string]any{
		"artifacts.abi_path":          DefaultABIPath,
		"artifacts.bin_path":          DefaultBinPath,
		"wallet.encrypted_key_path":   DefaultEncryptedKeyPath,
		"deploy.confirmations":        1,
		"deploy.verify_confirmations": 6,
		"deploy.wait_mined_timeout":   5 * time.Minute,
		"etherscan.url":               DefaultEtherscanURL,
		"etherscan.chain_id":          DefaultVerifyChainID,
		"etherscan.source_path":       "./SimpleStorage.sol",
		"etherscan.contract_name":     "SimpleStorage",
		"etherscan.compiler_version":  "v0.8.8+commit.dddeac2f",
	}
)

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRPC checks that a node endpoint is configured.
func (c *Config) ValidateRPC() error {
	if c.RPC.URL == "" {
		return ErrMissingRPCURL
	}

	return nil
}

// ValidateWallet checks that at least one signing identity source is usable.
func (c *Config) ValidateWallet(useEncryptedKey bool) error {
	w := c.Wallet
	switch {
	case useEncryptedKey:
		if w.Password == "" {
			return ErrMissingPassword
		}
		if w.EncryptedKeyPath == "" {
			return errors.New("encrypted key path is required")
		}
	case w.KMS.KeyID != "":
		if w.KMS.KeyRegion == "" {
			return errors.New("kms key region is required when a kms key id is set")
		}
	case w.PrivateKey == "":
		return ErrMissingKey
	}

	return nil
}

// ValidateEtherscan checks the verification service settings.
func (c *Config) ValidateEtherscan() error {
	if c.Etherscan.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Etherscan.URL == "" {
		return errors.New("etherscan url is required")
	}

	return nil
}

// Redacted returns a copy of the config with every secret replaced, safe for logging.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}

		return redacted
	}

	c.Wallet.PrivateKey = mask(c.Wallet.PrivateKey)
	c.Wallet.Password = mask(c.Wallet.Password)
	c.Wallet.KMS.KeyID = mask(c.Wallet.KMS.KeyID)
	c.Etherscan.APIKey = mask(c.Etherscan.APIKey)
	c.RPC.URL = redactURL(c.RPC.URL)
	c.RPC.BackupURLs = slices.Clone(c.RPC.BackupURLs)
	for i, u := range c.RPC.BackupURLs {
		c.RPC.BackupURLs[i] = redactURL(u)
	}

	return c
}

// redactURL keeps the scheme and host of an RPC endpoint. Hosted providers put the API key in
// the path, query or user info, so anything beyond the host is masked.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}

	base := u.Scheme + "://" + u.Host
	if u.User != nil || strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.Fragment != "" {
		return base + "/" + redacted
	}

	return base
}
