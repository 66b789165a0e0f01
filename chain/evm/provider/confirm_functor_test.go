package provider

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
)

func Test_ConfirmFuncGeth_ConfirmFunc(t *testing.T) {
	t.Parallel()

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err, "failed to generate admin key")

	adminTransactor, err := bind.NewKeyedTransactorWithChainID(adminKey, simChainID)
	require.NoError(t, err)

	recipient := crypto.PubkeyToAddress(mustGenerateKey(t).PublicKey)

	genesis := types.GenesisAlloc{
		adminTransactor.From: {Balance: prefundAmountWei},
	}

	// newTx builds and signs a value transfer, or a contract creation when data is set.
	newTx := func(t *testing.T, client *SimClient, data []byte) *types.Transaction {
		t.Helper()

		nonce, err := client.PendingNonceAt(t.Context(), adminTransactor.From)
		require.NoError(t, err)

		gasPrice, err := client.SuggestGasPrice(t.Context())
		require.NoError(t, err)

		var tx *types.Transaction
		if data == nil {
			tx = types.NewTransaction(nonce, recipient, big.NewInt(10000000000000000), 21000, gasPrice, nil)
		} else {
			tx = types.NewContractCreation(nonce, big.NewInt(0), 100_000, gasPrice, data)
		}

		signedTx, err := types.SignTx(tx, types.NewCancunSigner(simChainID), adminKey)
		require.NoError(t, err, "failed to sign transaction")

		return signedTx
	}

	tests := []struct {
		name              string
		giveConfirmations uint64
		giveTx            func(*testing.T, *SimClient) *types.Transaction
		wantBlock         uint64
		wantErr           string
	}{
		{
			name: "successful confirmation",
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				tx := newTx(t, client, nil)
				require.NoError(t, client.SendTransaction(t.Context(), tx))
				client.Commit()

				return tx
			},
			wantBlock: 2,
		},
		{
			name:              "successful confirmation with extra blocks",
			giveConfirmations: 3,
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				tx := newTx(t, client, nil)
				require.NoError(t, client.SendTransaction(t.Context(), tx))
				client.Commit()
				client.Commit()
				client.Commit()

				return tx
			},
			wantBlock: 2,
		},
		{
			name:              "not enough confirmations",
			giveConfirmations: 5,
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				tx := newTx(t, client, nil)
				require.NoError(t, client.SendTransaction(t.Context(), tx))
				client.Commit()

				return tx
			},
			wantErr: "did not reach 5 confirmations",
		},
		{
			name: "reverted contract creation",
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				// PUSH1 0 PUSH1 0 REVERT
				tx := newTx(t, client, common.FromHex("60006000fd"))
				require.NoError(t, client.SendTransaction(t.Context(), tx))
				client.Commit()

				return tx
			},
			wantErr: "reverted",
		},
		{
			name: "failed with nil tx",
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				return nil
			},
			wantErr: "tx was nil",
		},
		{
			name: "failed with context deadline exceeded",
			giveTx: func(t *testing.T, client *SimClient) *types.Transaction {
				t.Helper()

				// Never sent, so no receipt will show up.
				return newTx(t, client, nil)
			},
			wantErr: "context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := simulated.NewBackend(genesis, simulated.WithBlockGasLimit(50000000))
			backend.Commit() // Commit the genesis block
			t.Cleanup(func() { _ = backend.Close() })

			client := NewSimClient(t, backend)

			tx := tt.giveTx(t, client)

			functor := ConfirmFuncGeth(1*time.Second,
				WithTickInterval(50*time.Millisecond),
				WithConfirmations(tt.giveConfirmations),
			)
			confirmFunc, err := functor.Generate(t.Context(), simChainID, client, adminTransactor.From)
			require.NoError(t, err)

			got, err := confirmFunc(tx)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantBlock, got)
		})
	}
}

func Test_WithConfirmations_Minimum(t *testing.T) {
	t.Parallel()

	cf, ok := ConfirmFuncGeth(time.Second, WithConfirmations(0)).(*confirmFuncGeth)
	require.True(t, ok)
	require.Equal(t, uint64(1), cf.confirmations)
}

func mustGenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return key
}
