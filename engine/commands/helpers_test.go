package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/chain/evm/provider"
	"github.com/ans-sigalas/simplestorage/config"
	"github.com/ans-sigalas/simplestorage/pkg/logger"
	"github.com/ans-sigalas/simplestorage/verify/etherscan"
)

const (
	// testPrivateKey is the first default Ganache account key.
	testPrivateKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	testPassword   = "correct horse battery staple"
	testAPIKey     = "TESTKEY"
	testCompiler   = "v0.8.8+commit.dddeac2f"
)

var testAddress = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")

// testConfig returns a config pointing at the SimpleStorage artifacts in contracts/testdata.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	source := filepath.Join(t.TempDir(), "SimpleStorage.sol")
	require.NoError(t, os.WriteFile(source, []byte("pragma solidity 0.8.8; contract SimpleStorage {}"), 0o600))

	return &config.Config{
		Wallet: config.WalletConfig{
			PrivateKey:       testPrivateKey,
			Password:         testPassword,
			EncryptedKeyPath: filepath.Join(t.TempDir(), ".encryptedKey.json"),
		},
		Artifacts: config.ArtifactsConfig{
			ABIPath: "../../contracts/testdata/SimpleStorage_sol_SimpleStorage.abi",
			BinPath: "../../contracts/testdata/SimpleStorage_sol_SimpleStorage.bin",
		},
		Deploy: config.DeployConfig{
			Confirmations:       1,
			VerifyConfirmations: 1,
			WaitMinedTimeout:    time.Minute,
		},
		Etherscan: config.EtherscanConfig{
			URL:             config.DefaultEtherscanURL,
			ChainID:         config.DefaultVerifyChainID,
			SourcePath:      source,
			ContractName:    "SimpleStorage",
			CompilerVersion: testCompiler,
		},
	}
}

// writeConfig writes cfg as a YAML config file and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// newTestCommands returns Commands that deploy to a simulated chain.
func newTestCommands(t *testing.T) Commands {
	t.Helper()

	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)

	p := provider.NewSimChainProvider(t, provider.SimChainProviderConfig{DeployerKey: key})

	return Commands{
		lggr: logger.Test(t),
		loadChain: func(ctx context.Context, _ logger.Logger, _ *config.Config, _ bool) (evm.Chain, func(), error) {
			chain, err := p.Initialize(ctx)

			return chain, func() {}, err
		},
		clientOpts:    []func(*evm.Client){evm.WithRetryConfig(fastRetryConfig())},
		etherscanOpts: []etherscan.Option{etherscan.WithPolling(3, time.Millisecond)},
	}
}

func fastRetryConfig() evm.RetryConfig {
	return evm.RetryConfig{
		Attempts:     1,
		Delay:        time.Millisecond,
		Timeout:      time.Second,
		DialAttempts: 1,
		DialDelay:    time.Millisecond,
		DialTimeout:  time.Second,
	}
}

// execute runs the sub-commands of c under a fresh root command and returns what they printed.
func execute(t *testing.T, c Commands, cfg *config.Config, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	root.AddCommand(c.All()...)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", writeConfig(t, cfg), "--env-file", ""))

	err := root.ExecuteContext(t.Context())

	return out.String(), err
}

// fakeExplorer is an Etherscan API which verifies every submission, except for addresses listed
// in fail. Addresses in verified are reported as verified from the start.
type fakeExplorer struct {
	*httptest.Server
	verified map[string]bool
	fail     map[string]bool
	submits  atomic.Int64
}

func newFakeExplorer(t *testing.T) *fakeExplorer {
	t.Helper()

	f := &fakeExplorer{verified: map[string]bool{}, fail: map[string]bool{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("apikey") != testAPIKey {
			http.Error(w, "bad request", http.StatusBadRequest)

			return
		}

		resp := etherscan.APIResponse{Status: "1", Message: "OK"}
		switch r.Form.Get("action") {
		case "getabi":
			if !f.verified[strings.ToLower(r.Form.Get("address"))] {
				resp = etherscan.APIResponse{Status: "0", Message: "NOTOK", Result: jsonString("Contract source code not verified")}
			} else {
				resp.Result = jsonString("[]")
			}
		case "verifysourcecode":
			f.submits.Add(1)
			resp.Result = jsonString("guid-" + strings.ToLower(r.Form.Get("contractaddress")))
		case "checkverifystatus":
			if f.fail[strings.TrimPrefix(r.Form.Get("guid"), "guid-")] {
				resp = etherscan.APIResponse{Status: "0", Message: "NOTOK", Result: jsonString("Fail - Unable to verify")}
			} else {
				resp.Result = jsonString("Pass - Verified")
			}
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.Close)

	return f
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)

	return b
}

// newFakeNode serves eth_chainId as 1337 and eth_blockNumber as blockNumber.
func newFakeNode(t *testing.T, blockNumber string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		var result string
		switch req.Method {
		case "eth_blockNumber":
			result = blockNumber
		case "eth_chainId":
			result = "0x539"
		default:
			http.Error(w, "unsupported method", http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)

	return srv
}
