// Package artifact reads compiled contract artifacts: the solcjs .abi/.bin pair or a Hardhat
// artifact JSON file.
package artifact

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrEmptyBytecode is returned when an artifact has no creation bytecode, as for interfaces and
// abstract contracts.
var ErrEmptyBytecode = errors.New("artifact has empty bytecode")

// Artifact is a compiled contract.
type Artifact struct {
	// Name is the contract name.
	Name string
	// ABI is the parsed interface descriptor.
	ABI abi.ABI
	// RawABI is the ABI JSON as read from disk.
	RawABI string
	// Bytecode is the creation bytecode.
	Bytecode []byte
}

// Load reads the solcjs output pair, for example SimpleStorage_sol_SimpleStorage.abi and
// SimpleStorage_sol_SimpleStorage.bin.
func Load(abiPath, binPath string) (*Artifact, error) {
	rawABI, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI file %s: %w", abiPath, err)
	}

	rawBin, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytecode file %s: %w", binPath, err)
	}

	return New(nameFromPath(abiPath), string(rawABI), string(rawBin))
}

// hardhatArtifact is the subset of a Hardhat artifact file used here.
type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadHardhat reads a Hardhat artifact JSON file, for example
// artifacts/contracts/SimpleStorage.sol/SimpleStorage.json.
func LoadHardhat(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file %s: %w", path, err)
	}

	var ha hardhatArtifact
	if err = json.Unmarshal(b, &ha); err != nil {
		return nil, fmt.Errorf("failed to parse artifact file %s: %w", path, err)
	}
	if len(ha.ABI) == 0 {
		return nil, fmt.Errorf("artifact file %s has no abi", path)
	}

	name := ha.ContractName
	if name == "" {
		name = nameFromPath(path)
	}

	return New(name, string(ha.ABI), ha.Bytecode)
}

// LoadAuto picks the loader from path. A .json file is read as a Hardhat artifact. Anything else
// is treated as the solcjs pair, where path may name either file or the common prefix.
func LoadAuto(path string) (*Artifact, error) {
	switch filepath.Ext(path) {
	case ".json":
		return LoadHardhat(path)
	case ".abi", ".bin":
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}

	return Load(path+".abi", path+".bin")
}

// New builds an artifact from ABI JSON and hex encoded bytecode. The 0x prefix and surrounding
// whitespace of the bytecode are optional.
func New(name, rawABI, bytecode string) (*Artifact, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI of %s: %w", name, err)
	}

	code, err := decodeBytecode(bytecode)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode of %s: %w", name, err)
	}

	return &Artifact{
		Name:     name,
		ABI:      parsed,
		RawABI:   rawABI,
		Bytecode: code,
	}, nil
}

// HasMethod reports whether the ABI declares a method with the given name.
func (a *Artifact) HasMethod(name string) bool {
	_, ok := a.ABI.Methods[name]

	return ok
}

func decodeBytecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, ErrEmptyBytecode
	}

	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return code, nil
}

// nameFromPath turns SimpleStorage_sol_SimpleStorage.abi into SimpleStorage.
func nameFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(name, "_sol_"); i >= 0 {
		return name[i+len("_sol_"):]
	}

	return name
}
