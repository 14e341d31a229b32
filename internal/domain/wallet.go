package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer is a connected account able to sign transactions. Read-only
// simulated calls are issued from its address.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Wallet is the session collaborator that yields a Signer once the user has
// approved access. Implementations return ErrWalletUnavailable when no
// compatible key source is present.
type Wallet interface {
	RequestAccounts(ctx context.Context) (Signer, error)
}
