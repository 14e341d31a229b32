package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Token binds an ERC-20 token.
type Token struct {
	client  *Client
	address common.Address
}

// NewToken binds the ERC-20 at address.
func NewToken(client *Client, address common.Address) *Token {
	return &Token{client: client, address: address}
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

// Decimals reads the token's decimal precision.
func (t *Token) Decimals(ctx context.Context, from common.Address) (uint8, error) {
	data, err := ERC20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: pack decimals: %w", err)
	}
	out, err := t.client.Call(ctx, from, t.address, data)
	if err != nil {
		return 0, err
	}
	values, err := ERC20ABI.Unpack("decimals", out)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("chain: decode decimals: %w: %v", domain.ErrTransactionReverted, err)
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals: unexpected %T: %w", values[0], domain.ErrTransactionReverted)
	}
	return dec, nil
}

// Approve submits approve(spender, amount). Any boolean return value is
// ignored; success is judged by the receipt.
func (t *Token) Approve(ctx context.Context, signer domain.Signer, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return t.client.Transact(ctx, signer, t.address, data)
}
