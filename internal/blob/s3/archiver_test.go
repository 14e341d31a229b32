package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	failKey string
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if path == m.failKey {
		return errors.New("boom")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func TestReceiptArchiver_Archive(t *testing.T) {
	w := newMemWriter()
	a := NewReceiptArchiver(w, "receipts", big.NewInt(137), slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(42),
		Logs:        []*types.Log{},
	}
	require.NoError(t, a.Archive(context.Background(), domain.ActionPush, "0xvault", []*types.Receipt{r, nil}))

	key := "receipts/137/" + r.TxHash.Hex() + ".json"
	require.Contains(t, w.objects, key)
	assert.Equal(t, "application/json", w.types[key])

	var got struct {
		Action  string          `json:"action"`
		Vault   string          `json:"vault"`
		Receipt json.RawMessage `json:"receipt"`
	}
	require.NoError(t, json.Unmarshal(w.objects[key], &got))
	assert.Equal(t, "push", got.Action)
	assert.Equal(t, "0xvault", got.Vault)
	assert.Contains(t, string(got.Receipt), `"status":"0x1"`)
}

func TestReceiptArchiver_ContinuesAfterFailure(t *testing.T) {
	w := newMemWriter()
	a := NewReceiptArchiver(w, "", big.NewInt(1), slog.New(slog.NewTextHandler(io.Discard, nil)))
	bad := &types.Receipt{TxHash: common.HexToHash("0x0a"), BlockNumber: big.NewInt(1), Logs: []*types.Log{}}
	good := &types.Receipt{TxHash: common.HexToHash("0x0b"), BlockNumber: big.NewInt(1), Logs: []*types.Log{}}
	w.failKey = a.Key(bad.TxHash.Hex())

	err := a.Archive(context.Background(), domain.ActionSettle, "", []*types.Receipt{bad, good})
	require.Error(t, err)
	assert.Contains(t, w.objects, a.Key(good.TxHash.Hex()))
	assert.Equal(t, "1/"+good.TxHash.Hex()+".json", a.Key(good.TxHash.Hex()))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
