package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidAmount, "invalid_amount"},
		{fmt.Errorf("vault: push: %w", ErrNoVaultBound), "no_vault_bound"},
		{fmt.Errorf("%w: %w", ErrCreationFailed, ErrTransactionReverted), "creation_failed"},
		{fmt.Errorf("%w: %w", ErrTimedOut, ErrNetwork), "timed_out"},
		{fmt.Errorf("chain: call: %w", ErrNetwork), "network_error"},
		{context.DeadlineExceeded, "timed_out"},
		{fmt.Errorf("wrap: %w", context.Canceled), "canceled"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorKind(tc.err), "%v", tc.err)
	}
}

func TestPartitionKey(t *testing.T) {
	key := PartitionKey{
		ParentToken: common.HexToAddress("0xAbC0000000000000000000000000000000000001"),
		Oracle:      common.HexToAddress("0x2F5e3684cb1F318ec51b00Edba38d79Ac2c0aA9d"),
		QuestionID:  common.HexToHash("0x01"),
	}
	assert.NoError(t, key.Validate())
	assert.Equal(t,
		"0xabc0000000000000000000000000000000000001:0x2f5e3684cb1f318ec51b00edba38d79ac2c0aa9d:0x0000000000000000000000000000000000000000000000000000000000000001",
		key.String())

	noParent := key
	noParent.ParentToken = common.Address{}
	assert.ErrorIs(t, noParent.Validate(), ErrInvalidAddress)

	noOracle := key
	noOracle.Oracle = common.Address{}
	assert.ErrorIs(t, noOracle.Validate(), ErrInvalidAddress)
}

func TestProbeStatusString(t *testing.T) {
	assert.Equal(t, "found", ProbeFound.String())
	assert.Equal(t, "not_found", ProbeNotFound.String())
	assert.Equal(t, "error", ProbeError.String())
}
