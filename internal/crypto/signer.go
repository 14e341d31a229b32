package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions with an in-memory secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// NewSignerFromHex parses a hex private key and wraps it.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// Address returns the account controlled by this signer.
func (s *Signer) Address() common.Address { return s.address }

// SignTx signs tx for chainID using the latest signer rules for that chain.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign tx: %w", err)
	}
	return signed, nil
}
