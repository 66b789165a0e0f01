// Package provider builds evm.Chain instances: the connection, the deployer signer and the
// function confirming transactions.
package provider

import (
	"context"

	"github.com/ans-sigalas/simplestorage/chain/evm"
)

// Provider initializes an EVM chain.
type Provider interface {
	Initialize(ctx context.Context) (evm.Chain, error)
	Name() string
	BlockChain() evm.Chain
}

var (
	_ Provider = (*RPCChainProvider)(nil)
	_ Provider = (*SimChainProvider)(nil)
)
