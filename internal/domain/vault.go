package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PartitionKey identifies a vault before it exists. The same triple maps to
// at most one vault.
type PartitionKey struct {
	ParentToken common.Address
	Oracle      common.Address
	QuestionID  common.Hash
}

// Validate rejects keys that could never name a vault.
func (k PartitionKey) Validate() error {
	if k.ParentToken == (common.Address{}) {
		return fmt.Errorf("%w: parent token is the zero address", ErrInvalidAddress)
	}
	if k.Oracle == (common.Address{}) {
		return fmt.Errorf("%w: oracle is the zero address", ErrInvalidAddress)
	}
	return nil
}

// String renders the key as a lowercase colon-separated triple suitable for
// cache and lock keys.
func (k PartitionKey) String() string {
	return strings.ToLower(k.ParentToken.Hex() + ":" + k.Oracle.Hex() + ":" + k.QuestionID.Hex())
}

// OutcomeTokenPair holds the YES/NO tokens produced by partitioning.
type OutcomeTokenPair struct {
	Yes common.Address `json:"yes_token"`
	No  common.Address `json:"no_token"`
}

// ProbeStatus is the outcome class of an existence probe.
type ProbeStatus int

const (
	ProbeNotFound ProbeStatus = iota
	ProbeFound
	// ProbeError means the probe could not reach a verdict (transport
	// failure, malformed response). It is never treated as NotFound.
	ProbeError
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeFound:
		return "found"
	case ProbeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// ProbeResult is what an existence probe reports for a PartitionKey.
type ProbeResult struct {
	Status   ProbeStatus
	Vault    common.Address
	Outcomes OutcomeTokenPair
	Strategy string
	Err      error
}

// Found builds a ProbeFound result.
func Found(strategy string, vault common.Address, outcomes OutcomeTokenPair) ProbeResult {
	return ProbeResult{Status: ProbeFound, Vault: vault, Outcomes: outcomes, Strategy: strategy}
}

// NotFound builds a ProbeNotFound result.
func NotFound(strategy string) ProbeResult {
	return ProbeResult{Status: ProbeNotFound, Strategy: strategy}
}

// ProbeFailed builds a ProbeError result wrapping err.
func ProbeFailed(strategy string, err error) ProbeResult {
	return ProbeResult{Status: ProbeError, Strategy: strategy, Err: err}
}

// Creation is the outcome of a mined partition transaction.
type Creation struct {
	Vault    common.Address
	Outcomes OutcomeTokenPair
	TxHash   common.Hash
	Receipt  *types.Receipt
}

// ParentToken is the collateral token a vault splits. Decimals is fetched
// once per binding and never changes for a given address.
type ParentToken struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// Resolution is the externally observed settlement state of a vault.
// WinningIndex is only meaningful when Resolved is true.
type Resolution struct {
	Resolved     bool  `json:"resolved"`
	WinningIndex uint8 `json:"winning_index"`
}
