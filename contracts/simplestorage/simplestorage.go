// Package simplestorage deploys and drives the SimpleStorage contract, which stores a single
// uint256 behind store(uint256) and retrieve().
package simplestorage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ans-sigalas/simplestorage/chain/evm"
	"github.com/ans-sigalas/simplestorage/contracts/artifact"
)

const (
	methodRetrieve = "retrieve"
	methodStore    = "store"
)

var (
	// ErrMissingMethod is returned when the artifact ABI does not expose retrieve and store.
	ErrMissingMethod = errors.New("artifact is not a SimpleStorage contract")
	// ErrNoCode is returned when no code is found at the contract address.
	ErrNoCode = errors.New("no contract code at address")
)

// SimpleStorage is a deployed SimpleStorage contract.
type SimpleStorage struct {
	address  common.Address
	deployTx *types.Transaction
	contract *bind.BoundContract
	chain    evm.Chain
}

// Deploy sends the creation transaction signed by the chain's deployer key and waits for it to be
// confirmed.
func Deploy(ctx context.Context, chain evm.Chain, art *artifact.Artifact) (*SimpleStorage, error) {
	if err := validateABI(art); err != nil {
		return nil, err
	}

	addr, tx, contract, err := bind.DeployContract(transactOpts(ctx, chain), art.ABI, art.Bytecode, chain.Client)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s deployment transaction: %w", art.Name, err)
	}

	if _, err = chain.Confirm(tx); err != nil {
		return nil, fmt.Errorf("failed to confirm %s deployment: %w", art.Name, err)
	}

	code, err := chain.Client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoCode, addr.Hex())
	}

	return &SimpleStorage{
		address:  addr,
		deployTx: tx,
		contract: contract,
		chain:    chain,
	}, nil
}

// Bind returns a handle to an already deployed contract at addr.
func Bind(addr common.Address, chain evm.Chain, art *artifact.Artifact) (*SimpleStorage, error) {
	if err := validateABI(art); err != nil {
		return nil, err
	}

	return &SimpleStorage{
		address:  addr,
		contract: bind.NewBoundContract(addr, art.ABI, chain.Client, chain.Client, chain.Client),
		chain:    chain,
	}, nil
}

// Address returns the contract address.
func (s *SimpleStorage) Address() common.Address {
	return s.address
}

// DeployTx returns the creation transaction, or nil when the contract was bound with Bind.
func (s *SimpleStorage) DeployTx() *types.Transaction {
	return s.deployTx
}

// Retrieve returns the stored value.
func (s *SimpleStorage) Retrieve(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodRetrieve); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", methodRetrieve, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values, expected 1", methodRetrieve, len(out))
	}

	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, expected uint256", methodRetrieve, out[0])
	}

	return v, nil
}

// Store sends store(value) and returns the transaction without waiting for it to be mined.
func (s *SimpleStorage) Store(ctx context.Context, value *big.Int) (*types.Transaction, error) {
	if value == nil || value.Sign() < 0 {
		return nil, fmt.Errorf("value must be a non-negative integer, got %v", value)
	}

	tx, err := s.contract.Transact(transactOpts(ctx, s.chain), methodStore, value)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s transaction: %w", methodStore, err)
	}

	return tx, nil
}

// StoreAndWait sends store(value) and waits for the transaction to be confirmed. It returns the
// transaction and the block it was included in.
func (s *SimpleStorage) StoreAndWait(ctx context.Context, value *big.Int) (*types.Transaction, uint64, error) {
	tx, err := s.Store(ctx, value)
	if err != nil {
		return nil, 0, err
	}

	block, err := s.chain.Confirm(tx)
	if err != nil {
		return tx, 0, fmt.Errorf("failed to confirm %s transaction: %w", methodStore, err)
	}

	return tx, block, nil
}

// transactOpts copies the deployer key so the context is not shared between calls.
func transactOpts(ctx context.Context, chain evm.Chain) *bind.TransactOpts {
	opts := *chain.DeployerKey
	opts.Context = ctx

	return &opts
}

func validateABI(art *artifact.Artifact) error {
	if art == nil {
		return errors.New("artifact is required")
	}
	for _, m := range []string{methodRetrieve, methodStore} {
		if !art.HasMethod(m) {
			return fmt.Errorf("%w: %s has no %s method", ErrMissingMethod, art.Name, m)
		}
	}

	// retrieve() returns (uint256), store(uint256) returns nothing.
	retrieve := art.ABI.Methods[methodRetrieve]
	if len(retrieve.Inputs) != 0 || len(retrieve.Outputs) != 1 || !isUint256(retrieve.Outputs[0].Type) {
		return fmt.Errorf("%w: %s has %s, expected retrieve() returns (uint256)", ErrMissingMethod, art.Name, retrieve.String())
	}
	store := art.ABI.Methods[methodStore]
	if len(store.Inputs) != 1 || !isUint256(store.Inputs[0].Type) {
		return fmt.Errorf("%w: %s has %s, expected store(uint256)", ErrMissingMethod, art.Name, store.String())
	}

	return nil
}

func isUint256(t abi.Type) bool {
	return t.T == abi.UintTy && t.Size == 256
}
