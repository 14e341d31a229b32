package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The signatures below are fixed by the deployed contracts and must stay
// bit-identical for selector and topic derivation.

const factoryABIJSON = `[
  {"type":"function","name":"partition","stateMutability":"nonpayable",
   "inputs":[{"name":"parent","type":"address"},{"name":"oracle","type":"address"},{"name":"questionId","type":"bytes32"}],
   "outputs":[{"name":"vault","type":"address"},{"name":"yesToken","type":"address"},{"name":"noToken","type":"address"}]},
  {"type":"event","name":"VaultCreated","anonymous":false,
   "inputs":[{"name":"parentToken","type":"address","indexed":true},{"name":"questionId","type":"bytes32","indexed":true},
             {"name":"vault","type":"address","indexed":false},{"name":"yesToken","type":"address","indexed":false},{"name":"noToken","type":"address","indexed":false}]}
]`

const vaultABIJSON = `[
  {"type":"function","name":"pushDown","stateMutability":"nonpayable","inputs":[{"name":"","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"pullUp","stateMutability":"nonpayable","inputs":[{"name":"","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"settle","stateMutability":"nonpayable","inputs":[{"name":"","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"resolved","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"winningIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"parent","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var (
	FactoryABI = mustParseABI(factoryABIJSON)
	VaultABI   = mustParseABI(vaultABIJSON)
	ERC20ABI   = mustParseABI(erc20ABIJSON)
)

// EventVaultCreated is the factory's creation event name.
const EventVaultCreated = "VaultCreated"

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: parse abi: " + err.Error())
	}
	return parsed
}
