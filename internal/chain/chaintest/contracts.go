package chaintest

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Selector returns the 4-byte selector of a method in the bundled ABIs.
func Selector(method string) []byte {
	if m, ok := chain.FactoryABI.Methods[method]; ok {
		return m.ID
	}
	if m, ok := chain.VaultABI.Methods[method]; ok {
		return m.ID
	}
	if m, ok := chain.ERC20ABI.Methods[method]; ok {
		return m.ID
	}
	panic("chaintest: unknown method " + method)
}

// Word left-pads b to a 32-byte ABI word.
func Word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

// Uint8 encodes a uint8 return value.
func Uint8(v uint8) []byte { return Word([]byte{v}) }

// Bool encodes a bool return value.
func Bool(v bool) []byte {
	if v {
		return Word([]byte{1})
	}
	return Word(nil)
}

// Address encodes an address return value.
func Address(a common.Address) []byte { return Word(a.Bytes()) }

// PartitionOutput encodes the partition return tuple.
func PartitionOutput(vault common.Address, outcomes domain.OutcomeTokenPair) []byte {
	out := append(Address(vault), Address(outcomes.Yes)...)
	return append(out, Address(outcomes.No)...)
}

// VaultCreatedLog builds a factory VaultCreated log.
func VaultCreatedLog(factory common.Address, key domain.PartitionKey, vault common.Address, outcomes domain.OutcomeTokenPair, block uint64) *types.Log {
	return &types.Log{
		Address: factory,
		Topics: []common.Hash{
			chain.FactoryABI.Events[chain.EventVaultCreated].ID,
			common.BytesToHash(key.ParentToken.Bytes()),
			key.QuestionID,
		},
		Data:        PartitionOutput(vault, outcomes),
		BlockNumber: block,
	}
}

// ScriptVault answers the vault's view methods.
func (b *Backend) ScriptVault(vault, parent common.Address, resolved bool, winning uint8) {
	b.Handle(vault, Selector("parent"), Return(Address(parent)))
	b.Handle(vault, Selector("resolved"), Return(Bool(resolved)))
	b.Handle(vault, Selector("winningIndex"), Return(Uint8(winning)))
}

// ScriptToken answers decimals() for token.
func (b *Backend) ScriptToken(token common.Address, decimals uint8) {
	b.Handle(token, Selector("decimals"), Return(Uint8(decimals)))
}

// Signer is a throwaway key satisfying domain.Signer.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewSigner generates a fresh key.
func NewSigner() *Signer {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Signer{key: key, addr: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address { return s.addr }

func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// MethodOf returns the bundled method name whose selector prefixes data.
func MethodOf(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for _, parsed := range []abi.ABI{chain.FactoryABI, chain.VaultABI, chain.ERC20ABI} {
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m.Name
		}
	}
	return ""
}

// Amount decodes the trailing uint256 argument of calldata.
func Amount(data []byte) *big.Int {
	if len(data) < 36 {
		return nil
	}
	return new(big.Int).SetBytes(data[len(data)-32:])
}
