package etherscan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ReadContractsList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	source := write("SimpleStorage.sol", "pragma solidity 0.8.8; contract SimpleStorage {}")

	defaults := ContractToVerify{
		ContractName:    "SimpleStorage",
		SourcePath:      source,
		CompilerVersion: testCompiler,
		OptimizerRuns:   200,
	}

	valid := write("contracts.toml", `
[[contracts]]
contract_address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

[[contracts]]
contract_address = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
contract_name = "Other"
compiler_version = "v0.8.24+commit.e11b9ed9"
optimizer_runs = 1000
constructor_args = "0x01"
`)

	got, err := ReadContractsList(valid, defaults)
	require.NoError(t, err)
	require.Len(t, got.Contracts, 2)

	assert.Equal(t, "SimpleStorage", got.Contracts[0].ContractName)
	assert.Equal(t, testCompiler, got.Contracts[0].CompilerVersion)
	assert.Equal(t, uint64(200), got.Contracts[0].OptimizerRuns)

	assert.Equal(t, "Other", got.Contracts[1].ContractName)
	assert.Equal(t, uint64(1000), got.Contracts[1].OptimizerRuns)
	assert.Equal(t, source, got.Contracts[1].SourcePath)

	req, err := got.Contracts[1].Request()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), req.Address)
	assert.Equal(t, "0x01", req.ConstructorArgs)
	assert.Contains(t, req.SourceCode, "contract SimpleStorage")

	tests := []struct {
		name    string
		give    string
		wantErr string
	}{
		{
			name:    "missing file",
			give:    filepath.Join(dir, "missing.toml"),
			wantErr: "failed to read file",
		},
		{
			name:    "invalid toml",
			give:    write("invalid.toml", "[[contracts]\n"),
			wantErr: "failed to unmarshal toml",
		},
		{
			name:    "empty list",
			give:    write("empty.toml", ""),
			wantErr: "no contracts to verify",
		},
		{
			name:    "invalid address",
			give:    write("bad.toml", "[[contracts]]\ncontract_address = \"0x123\"\n"),
			wantErr: `contract 0: invalid address "0x123"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ReadContractsList(tt.give, defaults)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func Test_ContractToVerify_Request_MissingSource(t *testing.T) {
	t.Parallel()

	_, err := ContractToVerify{SourcePath: filepath.Join(t.TempDir(), "missing.sol")}.Request()
	require.ErrorContains(t, err, "failed to read source file")
}
