package vault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/chain/chaintest"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

var (
	factoryAddr = common.HexToAddress("0x63a9F0360e073688854099cc2A9Ca931B006a91A")
	oracleAddr  = common.HexToAddress("0x2F5e3684cb1F318ec51b00Edba38d79Ac2c0aA9d")
	parentAddr  = common.HexToAddress("0xAAA0000000000000000000000000000000000aaa")
	vaultAddr   = common.HexToAddress("0x7770000000000000000000000000000000000777")
	pair        = domain.OutcomeTokenPair{
		Yes: common.HexToAddress("0x9990000000000000000000000000000000000999"),
		No:  common.HexToAddress("0x5550000000000000000000000000000000000555"),
	}
	testKey = domain.PartitionKey{
		ParentToken: parentAddr,
		Oracle:      oracleAddr,
		QuestionID:  common.HexToHash("0xcd4d000000000000000000000000000000000000000000000000000000000001"),
	}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWallet struct {
	mu     sync.Mutex
	signer domain.Signer
	err    error
	calls  int
}

func (w *fakeWallet) RequestAccounts(context.Context) (domain.Signer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	return w.signer, nil
}

type recordingView struct {
	mu    sync.Mutex
	shown []common.Address
}

func (v *recordingView) ShowVault(_ context.Context, a common.Address) {
	v.mu.Lock()
	v.shown = append(v.shown, a)
	v.mu.Unlock()
}

type env struct {
	backend *chaintest.Backend
	client  *chain.Client
	factory *chain.Factory
	signer  *chaintest.Signer
	wallet  *fakeWallet
	session *Session
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := chaintest.New()
	c := chain.NewClient(b, 137, chain.Options{
		ConfirmTimeout: 100 * time.Millisecond,
		PollInterval:   2 * time.Millisecond,
	}, discardLogger())
	signer := chaintest.NewSigner()
	w := &fakeWallet{signer: signer}
	return &env{
		backend: b,
		client:  c,
		factory: chain.NewFactory(c, factoryAddr),
		signer:  signer,
		wallet:  w,
		session: NewSession(w),
	}
}

// mineCreation makes every partition transaction emit VaultCreated for key.
func (e *env) mineCreation(key domain.PartitionKey, vault common.Address, outcomes domain.OutcomeTokenPair) {
	e.backend.OnSend = func(tx *types.Transaction, _ common.Address) *types.Receipt {
		r := &types.Receipt{Status: types.ReceiptStatusSuccessful}
		if chaintest.MethodOf(tx.Data()) == "partition" {
			r.Logs = []*types.Log{chaintest.VaultCreatedLog(factoryAddr, key, vault, outcomes, 0)}
		}
		return r
	}
}

// bindVault scripts a vault and its parent token and binds it.
func (e *env) bindVault(t *testing.T, decimals uint8) {
	t.Helper()
	e.backend.ScriptVault(vaultAddr, parentAddr, false, 0)
	e.backend.ScriptToken(parentAddr, decimals)
	_, ok, err := NewSynchronizer(e.session, e.client, discardLogger()).Sync(context.Background(), vaultAddr.Hex(), "")
	if err != nil || !ok {
		t.Fatalf("bind vault: ok=%v err=%v", ok, err)
	}
}

func (e *env) sentMethods() []string {
	var out []string
	for _, s := range e.backend.Sent() {
		out = append(out, chaintest.MethodOf(s.Tx.Data()))
	}
	return out
}

func (e *env) called(method string) bool {
	sel := fmt.Sprintf("%x", chaintest.Selector(method))
	for _, c := range e.backend.Calls() {
		if strings.HasSuffix(c, ":"+sel) {
			return true
		}
	}
	return false
}
