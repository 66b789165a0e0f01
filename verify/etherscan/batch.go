package etherscan

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// ContractToVerify is one entry of a verification batch file.
type ContractToVerify struct {
	ContractAddress string `toml:"contract_address"`
	ContractName    string `toml:"contract_name"`
	SourcePath      string `toml:"source_path"`
	CompilerVersion string `toml:"compiler_version"`
	OptimizerRuns   uint64 `toml:"optimizer_runs"`
	ConstructorArgs string `toml:"constructor_args"`
}

// ContractsToVerify is the content of a verification batch file:
//
//	[[contracts]]
//	contract_address = "0x..."
//	contract_name = "SimpleStorage"
//	source_path = "./SimpleStorage.sol"
//	compiler_version = "v0.8.8+commit.dddeac2f"
type ContractsToVerify struct {
	Contracts []ContractToVerify `toml:"contracts"`
}

// ReadContractsList reads a verification batch file. Empty fields of an entry are filled from
// defaults.
func ReadContractsList(path string, defaults ContractToVerify) (ContractsToVerify, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ContractsToVerify{}, fmt.Errorf("failed to read file %w", err)
	}

	var contracts ContractsToVerify
	if err = toml.Unmarshal(data, &contracts); err != nil {
		return ContractsToVerify{}, fmt.Errorf("failed to unmarshal toml: %w", err)
	}
	if len(contracts.Contracts) == 0 {
		return ContractsToVerify{}, errors.New("no contracts to verify")
	}

	for i := range contracts.Contracts {
		c := &contracts.Contracts[i]
		if !common.IsHexAddress(c.ContractAddress) {
			return ContractsToVerify{}, fmt.Errorf("contract %d: invalid address %q", i, c.ContractAddress)
		}
		if c.ContractName == "" {
			c.ContractName = defaults.ContractName
		}
		if c.SourcePath == "" {
			c.SourcePath = defaults.SourcePath
		}
		if c.CompilerVersion == "" {
			c.CompilerVersion = defaults.CompilerVersion
		}
		if c.OptimizerRuns == 0 {
			c.OptimizerRuns = defaults.OptimizerRuns
		}
	}

	return contracts, nil
}

// Request builds the verify request for the entry, reading the source file from disk.
func (c ContractToVerify) Request() (VerifyRequest, error) {
	src, err := os.ReadFile(c.SourcePath)
	if err != nil {
		return VerifyRequest{}, fmt.Errorf("failed to read source file %s: %w", c.SourcePath, err)
	}

	return VerifyRequest{
		Address:         common.HexToAddress(c.ContractAddress),
		ContractName:    c.ContractName,
		SourceCode:      string(src),
		CompilerVersion: c.CompilerVersion,
		OptimizerRuns:   c.OptimizerRuns,
		ConstructorArgs: c.ConstructorArgs,
	}, nil
}
