package provider

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ans-sigalas/simplestorage/chain/evm/keystore"
)

// SignerGenerator is an interface for generating geth's *bind.TransactOpts instances and
// providing hash signing capabilities. These instances are used to sign transactions using geth bindings,
// and the SignHash method allows signing of arbitrary hashes.
type SignerGenerator interface {
	Generate(chainID *big.Int) (*bind.TransactOpts, error)
	SignHash(hash []byte) ([]byte, error)
}

var (
	_ SignerGenerator = (*transactorFromKey)(nil)
	_ SignerGenerator = (*transactorRandom)(nil)
	_ SignerGenerator = (*transactorFromKMSSigner)(nil)
)

// GeneratorOptions contains configuration options for the SignerGenerator.
type GeneratorOptions struct {
	gasLimit uint64
}

// GeneratorOption is a function that modifies GeneratorOptions.
type GeneratorOption func(*GeneratorOptions)

// WithGasLimit fixes the gas limit of every transaction instead of estimating it.
func WithGasLimit(gasLimit uint64) GeneratorOption {
	return func(opts *GeneratorOptions) {
		opts.gasLimit = gasLimit
	}
}

func applyOptions(opts []GeneratorOption) *GeneratorOptions {
	o := &GeneratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// TransactorFromRaw returns a generator which creates a transactor from a raw hex encoded private
// key. The 0x prefix is optional.
func TransactorFromRaw(privKey string, opts ...GeneratorOption) SignerGenerator {
	return &transactorFromKey{
		loadKey: func() (*ecdsa.PrivateKey, error) {
			return keystore.ParsePrivateKey(privKey)
		},
		gasLimit: applyOptions(opts).gasLimit,
	}
}

// TransactorFromKeystore returns a generator which decrypts keystore JSON with password.
func TransactorFromKeystore(data []byte, password string, opts ...GeneratorOption) SignerGenerator {
	return &transactorFromKey{
		loadKey: func() (*ecdsa.PrivateKey, error) {
			return keystore.Decrypt(data, password)
		},
		gasLimit: applyOptions(opts).gasLimit,
	}
}

// TransactorFromKeystoreFile returns a generator which reads and decrypts the keystore file at
// path. The file is read on first use.
func TransactorFromKeystoreFile(path, password string, opts ...GeneratorOption) SignerGenerator {
	return &transactorFromKey{
		loadKey: func() (*ecdsa.PrivateKey, error) {
			return keystore.ReadFile(path, password)
		},
		gasLimit: applyOptions(opts).gasLimit,
	}
}

// transactorFromKey is a SignerGenerator backed by a local private key. The key is loaded lazily
// and cached.
type transactorFromKey struct {
	loadKey  func() (*ecdsa.PrivateKey, error)
	privKey  *ecdsa.PrivateKey
	gasLimit uint64
}

func (g *transactorFromKey) key() (*ecdsa.PrivateKey, error) {
	if g.privKey != nil {
		return g.privKey, nil
	}

	privKey, err := g.loadKey()
	if err != nil {
		return nil, err
	}
	g.privKey = privKey

	return privKey, nil
}

// Generate loads the private key and returns the bind transactor options.
func (g *transactorFromKey) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	privKey, err := g.key()
	if err != nil {
		return nil, err
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return nil, err
	}
	if g.gasLimit > 0 {
		transactor.GasLimit = g.gasLimit
	}

	return transactor, nil
}

// SignHash signs a hash using the private key of the generator.
func (g *transactorFromKey) SignHash(hash []byte) ([]byte, error) {
	privKey, err := g.key()
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}

	return sig, nil
}

// TransactorRandom is a SignerGenerator that creates a transactor with a random private key.
// A random private key is generated the first time Generate() or SignHash is called, and the same key is used for subsequent calls.
func TransactorRandom() SignerGenerator {
	return &transactorRandom{}
}

// transactorRandom is a SignerGenerator that creates a transactor from a random keypair.
type transactorRandom struct {
	privKey *ecdsa.PrivateKey
}

func (g *transactorRandom) key() (*ecdsa.PrivateKey, error) {
	if g.privKey == nil {
		privKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate random private key: %w", err)
		}
		g.privKey = privKey
	}

	return g.privKey, nil
}

// Generate generates a random key and returns the bind transactor options.
func (g *transactorRandom) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	privKey, err := g.key()
	if err != nil {
		return nil, err
	}

	return bind.NewKeyedTransactorWithChainID(privKey, chainID)
}

// SignHash signs a hash using the same random private key generated in Generate().
func (g *transactorRandom) SignHash(hash []byte) ([]byte, error) {
	privKey, err := g.key()
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}

	return sig, nil
}

// TransactorFromKMS creates a SignerGenerator that uses a KMS key to sign transactions.
//
// It requires the KMS key ID, region, and optionally an AWS profile name. If the AWS profile
// name is not provided, it defaults to using the environment variables to determine the AWS
// profile.
func TransactorFromKMS(keyID, keyRegion, awsProfileName string, opts ...GeneratorOption) (SignerGenerator, error) {
	signer, err := NewKMSSigner(keyID, keyRegion, awsProfileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS signer: %w", err)
	}

	return TransactorFromKMSSigner(signer, opts...), nil
}

// TransactorFromKMSSigner creates a SignerGenerator from an existing KMSSigner instance.
func TransactorFromKMSSigner(signer *KMSSigner, opts ...GeneratorOption) SignerGenerator {
	return &transactorFromKMSSigner{
		signer:   signer,
		gasLimit: applyOptions(opts).gasLimit,
	}
}

// transactorFromKMSSigner is a SignerGenerator that creates a transactor using a KMS signer.
type transactorFromKMSSigner struct {
	signer   *KMSSigner
	gasLimit uint64
}

// Generate uses KMS to create a bind.TransactOpts instance for signing transactions.
func (g *transactorFromKMSSigner) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	transactor, err := g.signer.GetTransactOpts(context.Background(), chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transact opts from KMS signer: %w", err)
	}
	if g.gasLimit > 0 {
		transactor.GasLimit = g.gasLimit
	}

	return transactor, nil
}

// SignHash signs a hash using the KMS signer.
func (g *transactorFromKMSSigner) SignHash(hash []byte) ([]byte, error) {
	return g.signer.SignHash(hash)
}
