// Package keystore encrypts and decrypts deployer private keys using the Web3 Secret Storage
// format (the JSON keystore written by geth and ethers).
package keystore

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ErrFileExists is returned by WriteFile when the destination exists and force is not set.
var ErrFileExists = errors.New("encrypted key file already exists")

// Strength selects the scrypt parameters used to derive the encryption key.
type Strength int

const (
	// Standard uses geth's standard scrypt parameters. Decrypting takes about a second.
	Standard Strength = iota
	// Light uses geth's light scrypt parameters. Meant for tests and throwaway keys.
	Light
)

func (s Strength) params() (n, p int) {
	if s == Light {
		return keystore.LightScryptN, keystore.LightScryptP
	}

	return keystore.StandardScryptN, keystore.StandardScryptP
}

// Encrypt encrypts the private key with password and returns the keystore JSON.
func Encrypt(privKey *ecdsa.PrivateKey, password string, strength Strength) ([]byte, error) {
	if privKey == nil {
		return nil, errors.New("private key is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key id: %w", err)
	}

	n, p := strength.params()
	data, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(privKey.PublicKey),
		PrivateKey: privKey,
	}, password, n, p)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	return data, nil
}

// EncryptHex parses a hex encoded private key, with or without the 0x prefix, and encrypts it.
func EncryptHex(privKeyHex, password string, strength Strength) ([]byte, error) {
	privKey, err := ParsePrivateKey(privKeyHex)
	if err != nil {
		return nil, err
	}

	return Encrypt(privKey, password, strength)
}

// ParsePrivateKey parses a hex encoded private key, with or without the 0x prefix.
func ParsePrivateKey(privKeyHex string) (*ecdsa.PrivateKey, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to ECDSA: %w", err)
	}

	return privKey, nil
}

// Decrypt decrypts keystore JSON with password.
func Decrypt(data []byte, password string) (*ecdsa.PrivateKey, error) {
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	return key.PrivateKey, nil
}

// ReadFile reads and decrypts the keystore file at path.
func ReadFile(path, password string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted key file %s: %w", path, err)
	}

	return Decrypt(data, password)
}

// WriteFile writes keystore JSON to path with owner only permissions. An existing file is only
// replaced when force is set.
func WriteFile(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}

		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

// Address returns the address stored in keystore JSON without decrypting it.
func Address(data []byte) (common.Address, error) {
	var k struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &k); err != nil {
		return common.Address{}, fmt.Errorf("failed to parse encrypted key: %w", err)
	}
	if !common.IsHexAddress(k.Address) {
		return common.Address{}, fmt.Errorf("encrypted key has invalid address %q", k.Address)
	}

	return common.HexToAddress(k.Address), nil
}
