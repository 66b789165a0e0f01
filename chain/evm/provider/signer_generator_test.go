package provider

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ans-sigalas/simplestorage/chain/evm/keystore"
)

const (
	// testPrivateKey is the first default Ganache account key.
	testPrivateKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	// testAddress is the address of testPrivateKey.
	testAddress = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
)

var testChainID = big.NewInt(1337)

func Test_SignerGenerators(t *testing.T) {
	t.Parallel()

	encrypted, err := keystore.EncryptHex(testPrivateKey, "password", keystore.Light)
	require.NoError(t, err)

	keyFile := filepath.Join(t.TempDir(), ".encryptedKey.json")
	require.NoError(t, os.WriteFile(keyFile, encrypted, 0o600))

	tests := []struct {
		name         string
		give         SignerGenerator
		wantGasLimit uint64
		wantErr      string
	}{
		{
			name: "raw key",
			give: TransactorFromRaw(testPrivateKey),
		},
		{
			name:         "raw key with prefix and gas limit",
			give:         TransactorFromRaw("0x"+testPrivateKey, WithGasLimit(500_000)),
			wantGasLimit: 500_000,
		},
		{
			name:    "invalid raw key",
			give:    TransactorFromRaw("not-a-key"),
			wantErr: "failed to convert private key to ECDSA",
		},
		{
			name: "keystore json",
			give: TransactorFromKeystore(encrypted, "password"),
		},
		{
			name:    "keystore json with wrong password",
			give:    TransactorFromKeystore(encrypted, "wrong"),
			wantErr: "failed to decrypt key",
		},
		{
			name:         "keystore file",
			give:         TransactorFromKeystoreFile(keyFile, "password", WithGasLimit(21_000)),
			wantGasLimit: 21_000,
		},
		{
			name:    "missing keystore file",
			give:    TransactorFromKeystoreFile(filepath.Join(t.TempDir(), "missing.json"), "password"),
			wantErr: "failed to read encrypted key file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.give.Generate(testChainID)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)

				_, err = tt.give.SignHash(crypto.Keccak256([]byte("hash")))
				require.ErrorContains(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress(testAddress), got.From)
			assert.Equal(t, tt.wantGasLimit, got.GasLimit)

			hash := crypto.Keccak256([]byte("hash"))
			sig, err := tt.give.SignHash(hash)
			require.NoError(t, err)

			pub, err := crypto.SigToPub(hash, sig)
			require.NoError(t, err)
			assert.Equal(t, got.From, crypto.PubkeyToAddress(*pub))
		})
	}
}

func Test_TransactorRandom(t *testing.T) {
	t.Parallel()

	gen := TransactorRandom()

	first, err := gen.Generate(testChainID)
	require.NoError(t, err)

	second, err := gen.Generate(testChainID)
	require.NoError(t, err)

	// The same key is reused across calls.
	assert.Equal(t, first.From, second.From)

	hash := crypto.Keccak256([]byte("hash"))
	sig, err := gen.SignHash(hash)
	require.NoError(t, err)

	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, first.From, crypto.PubkeyToAddress(*pub))
}
