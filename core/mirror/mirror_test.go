package mirror

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/internal/ledgertest"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// polls never fire on their own in these tests; only the initial read,
// explicit refetches and cascades touch the ledger
const idle = time.Hour

var fastCascade = []time.Duration{5 * time.Millisecond, 15 * time.Millisecond, 30 * time.Millisecond}

type fixture struct {
	d       *ledgertest.Deployment
	session *ledgersync.Session
	sink    *ledgertest.Sink
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := ledgertest.NewDeployment(alice)
	session := ledgersync.NewSession()
	sink := &ledgertest.Sink{}
	return &fixture{
		d:       d,
		session: session,
		sink:    sink,
		deps: Deps{
			Transport:       d.Ledger,
			Session:         session,
			Sink:            sink,
			Logger:          zap.NewNop(),
			ExplorerURL:     "https://hashscan.io/testnet",
			ReceiptInterval: time.Millisecond,
		},
	}
}

func (f *fixture) vault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(f.deps, VaultOptions{
		Address:         ledgertest.VaultAddress,
		BalanceInterval: idle,
		TotalInterval:   idle,
		WalletInterval:  idle,
		Cascade:         fastCascade,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

// slowReads delays every ledger read by delay for mirrors built afterwards,
// so their first action runs before any poll has delivered.
func (f *fixture) slowReads(delay time.Duration) {
	f.deps.Transport = slowTransport{Ledger: f.d.Ledger, delay: delay}
}

type slowTransport struct {
	*ledgertest.Ledger
	delay time.Duration
}

func (s slowTransport) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Ledger.Call(ctx, to, data)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

func waitHandle(t *testing.T, h *ledgersync.Handle) {
	t.Helper()
	require.NotNil(t, h)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	require.NoError(t, err)
	require.True(t, r.Succeeded())
}

func waitCascade(t *testing.T, s *ledgersync.Schedule) {
	t.Helper()
	require.NotNil(t, s)
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("cascade %s did not finish", s.ID)
	}
}

func units(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}

func TestDepsValidate(t *testing.T) {
	f := newFixture(t)

	deps := f.deps
	deps.Transport = nil
	_, err := NewVault(deps, VaultOptions{Address: ledgertest.VaultAddress})
	require.Error(t, err)

	deps = f.deps
	deps.Session = nil
	_, err = NewQuests(deps, QuestsOptions{Address: ledgertest.QuestsAddress})
	require.Error(t, err)

	_, err = NewElementalGame(f.deps, nil, ElementalGameOptions{Address: ledgertest.GameAddress})
	require.Error(t, err)
}
