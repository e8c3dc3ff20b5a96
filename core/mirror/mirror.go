// Package mirror keeps local, continuously refreshed copies of the four ledger
// subsystems and routes user actions through the shared write pipeline.
//
// Every mirror is a thin configuration over ledgersync.Core: it declares its
// polled queries, the pre-checks of each action, and the queries a
// confirmation must re-read.
package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by all mirrors.
type Deps struct {
	Transport       types.Transport
	Session         types.SessionProvider
	Sink            types.NotificationSink
	Logger          *zap.Logger
	Metrics         *metrics.Registry
	ExplorerURL     string
	ReceiptInterval time.Duration
	// Now is the clock used for lock and end times. Defaults to time.Now.
	Now func() time.Time
}

func (d Deps) validate() error {
	if d.Transport == nil {
		return errors.New("transport is required")
	}
	if d.Session == nil {
		return errors.New("session is required")
	}
	return nil
}

// Linkable is a mirror whose queries can join another mirror's cascade.
type Linkable interface {
	Refreshers() []ledgersync.Refresher
}

// base holds what every mirror shares: the core, the session binding and links.
type base struct {
	core    *ledgersync.Core
	session types.SessionProvider
	now     func() time.Time
	logger  *zap.Logger

	linkMu sync.RWMutex
	linked []Linkable

	cancelSession func()
}

func (b *base) init(name string, deps Deps, cascade []time.Duration, messages map[string]string) {
	logger := logging.OrGlobal(deps.Logger)
	b.now = deps.Now
	if b.now == nil {
		b.now = time.Now
	}
	b.session = deps.Session
	b.logger = logger.With(zap.String("subsystem", name))
	b.core = ledgersync.NewCore(ledgersync.CoreConfig{
		Name:            name,
		ReceiptInterval: deps.ReceiptInterval,
		Cascade:         cascade,
		ExplorerURL:     deps.ExplorerURL,
		Messages:        messages,
		Sink:            deps.Sink,
		Logger:          logger,
		Metrics:         deps.Metrics,
	}, deps.Transport)
}

// account returns the connected account, if any.
func (b *base) account() (common.Address, bool) {
	if !b.session.IsConnected() {
		return common.Address{}, false
	}
	return b.session.CurrentAddress()
}

// boundTo returns an enabled predicate that holds while addr is the connected account.
func (b *base) boundTo(addr common.Address) func() bool {
	return func() bool {
		current, ok := b.account()
		return ok && current == addr
	}
}

// watchSession calls rebind now and on every session change.
func (b *base) watchSession(rebind func()) {
	rebind()
	b.cancelSession = b.session.Subscribe(func(types.Session) {
		rebind()
		b.core.Poller.KickAll()
	})
}

// Link adds other mirrors' queries to this mirror's reconciliation cascade.
func (b *base) Link(others ...Linkable) {
	b.linkMu.Lock()
	defer b.linkMu.Unlock()
	b.linked = append(b.linked, others...)
}

func (b *base) linkedRefreshers() []ledgersync.Refresher {
	b.linkMu.RLock()
	defer b.linkMu.RUnlock()
	var out []ledgersync.Refresher
	for _, l := range b.linked {
		out = append(out, l.Refreshers()...)
	}
	return out
}

// Err returns the subsystem's current error, nil once dismissed.
func (b *base) Err() error { return b.core.Errors.Err() }

func (b *base) DismissError() { b.core.Errors.Dismiss() }

// Phase returns the phase of the subsystem's write operation.
func (b *base) Phase() types.Phase { return b.core.Machine.Phase() }

// Reset clears a confirmed operation back to Idle.
func (b *base) Reset() { b.core.Machine.Reset() }

// LastOperation returns the most recently settled write.
func (b *base) LastOperation() types.WriteOperation { return b.core.Machine.Last() }

// LastCascade returns the most recently armed reconciliation, nil if none.
func (b *base) LastCascade() *ledgersync.Schedule { return b.core.LastSchedule() }

// OnTransition registers fn for every write phase change.
func (b *base) OnTransition(fn func(ledgersync.Transition)) { b.core.Machine.OnTransition(fn) }

// TxLink returns the explorer URL of a transaction.
func (b *base) TxLink(hash common.Hash) string { return b.core.TxLink(hash) }

func (b *base) close() {
	if b.cancelSession != nil {
		b.cancelSession()
	}
	b.core.Close()
}

// refetchAll refetches every query, ignoring disabled ones, and returns the
// first other error.
func refetchAll(ctx context.Context, queries []ledgersync.Refresher) error {
	var first error
	for _, q := range queries {
		err := q.RefetchNow(ctx)
		if err == nil || errors.Is(err, ledgersync.ErrQueryDisabled) || errors.Is(err, ledgersync.ErrQueryClosed) {
			continue
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// appendQuery appends q unless it is nil.
func appendQuery[T any](out []ledgersync.Refresher, q *ledgersync.Query[T]) []ledgersync.Refresher {
	if q == nil {
		return out
	}
	return append(out, q)
}

func closeQuery[T any](q *ledgersync.Query[T]) {
	if q != nil {
		q.Close()
	}
}

// valueOf returns q's fresh value, false for a nil query.
func valueOf[T any](q *ledgersync.Query[T]) (T, bool) {
	if q == nil {
		var zero T
		return zero, false
	}
	return q.Value()
}

// freshOrFetch returns q's fresh value, reading it first when needed.
func freshOrFetch[T any](ctx context.Context, q *ledgersync.Query[T]) (T, error) {
	if q == nil {
		var zero T
		return zero, errors.WithStack(ledgersync.ErrQueryDisabled)
	}
	if v, ok := q.Value(); ok {
		return v, nil
	}
	return q.Refetch(ctx)
}
