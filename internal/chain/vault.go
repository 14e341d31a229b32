package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// maxUint256 bounds every amount argument.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Vault binds one partition vault contract.
type Vault struct {
	client  *Client
	address common.Address
}

// NewVault binds the vault at address.
func NewVault(client *Client, address common.Address) *Vault {
	return &Vault{client: client, address: address}
}

// Address returns the vault contract address.
func (v *Vault) Address() common.Address { return v.address }

// Parent reads the vault's parent collateral token.
func (v *Vault) Parent(ctx context.Context, from common.Address) (common.Address, error) {
	values, err := v.view(ctx, from, "parent")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: parent: unexpected %T: %w", values[0], domain.ErrTransactionReverted)
	}
	return addr, nil
}

// Resolved reports whether the vault's question has been resolved.
func (v *Vault) Resolved(ctx context.Context, from common.Address) (bool, error) {
	values, err := v.view(ctx, from, "resolved")
	if err != nil {
		return false, err
	}
	resolved, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: resolved: unexpected %T: %w", values[0], domain.ErrTransactionReverted)
	}
	return resolved, nil
}

// WinningIndex reads the winning outcome index. It is only meaningful on a
// resolved vault.
func (v *Vault) WinningIndex(ctx context.Context, from common.Address) (uint8, error) {
	values, err := v.view(ctx, from, "winningIndex")
	if err != nil {
		return 0, err
	}
	idx, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: winningIndex: unexpected %T: %w", values[0], domain.ErrTransactionReverted)
	}
	return idx, nil
}

// PushDown deposits amount base units of parent into YES+NO.
func (v *Vault) PushDown(ctx context.Context, signer domain.Signer, amount *big.Int) (*types.Transaction, error) {
	return v.transact(ctx, signer, "pushDown", amount)
}

// PullUp merges amount of YES+NO back into the parent token.
func (v *Vault) PullUp(ctx context.Context, signer domain.Signer, amount *big.Int) (*types.Transaction, error) {
	return v.transact(ctx, signer, "pullUp", amount)
}

// Settle redeems amount of the winning outcome token.
func (v *Vault) Settle(ctx context.Context, signer domain.Signer, amount *big.Int) (*types.Transaction, error) {
	return v.transact(ctx, signer, "settle", amount)
}

func (v *Vault) view(ctx context.Context, from common.Address, method string) ([]any, error) {
	data, err := VaultABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := v.client.Call(ctx, from, v.address, data)
	if err != nil {
		return nil, err
	}
	values, err := VaultABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("chain: decode %s: %w: %v", method, domain.ErrTransactionReverted, err)
	}
	return values, nil
}

func (v *Vault) transact(ctx context.Context, signer domain.Signer, method string, amount *big.Int) (*types.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	data, err := VaultABI.Pack(method, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	return v.client.Transact(ctx, signer, v.address, data)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return fmt.Errorf("chain: amount out of uint256 range: %w", domain.ErrInvalidAmount)
	}
	return nil
}
