package ledgersync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrQueryDisabled is returned by a refetch while the enabled predicate is false.
	ErrQueryDisabled = errors.New("query disabled")
	// ErrQueryClosed is returned by a refetch after Close.
	ErrQueryClosed = errors.New("query closed")
)

const defaultOneShotTimeout = 10 * time.Second

// Refresher is anything a reconciliation cascade can refetch.
type Refresher interface {
	Key() string
	RefetchNow(ctx context.Context) error
}

// QuerySpec describes one polled ledger read.
type QuerySpec[T any] struct {
	Key      string
	Endpoint string
	Args     []any
	// Interval between unconditional refetches. Zero fetches once and then
	// only on explicit refetch.
	Interval time.Duration
	// Timeout bounds each read. Defaults to Interval, or 10s for one-shot queries.
	Timeout time.Duration
	// Enabled gates all network activity. Nil means always enabled.
	Enabled  func() bool
	Fetch    func(ctx context.Context) (T, error)
	OnUpdate func(T)
	OnError  func(error)
}

// pollable is the type-erased view of a Query the Poller keeps.
type pollable interface {
	Key() string
	Kick()
	Close()
}

// Poller owns the polled queries of one subsystem.
type Poller struct {
	subsystem string
	logger    *zap.Logger
	metrics   *metrics.Registry
	group     singleflight.Group

	mu      sync.Mutex
	queries map[string]pollable
	closed  bool
	onError func(error)
}

func NewPoller(subsystem string, logger *zap.Logger, m *metrics.Registry) *Poller {
	return &Poller{
		subsystem: subsystem,
		logger:    logging.OrGlobal(logger).With(zap.String("subsystem", subsystem)),
		metrics:   m,
		queries:   make(map[string]pollable),
	}
}

// OnReadError registers fn to receive every failed read of every query, after
// the query's own OnError.
func (p *Poller) OnReadError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *Poller) readError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Subscribe registers a query and starts polling it. Keys are unique per poller;
// to change arguments, Close the old query and subscribe under a new key.
func Subscribe[T any](p *Poller, spec QuerySpec[T]) (*Query[T], error) {
	if spec.Key == "" {
		return nil, errors.New("query key is required")
	}
	if spec.Fetch == nil {
		return nil, errors.Errorf("query %s has no fetch function", spec.Key)
	}
	if spec.Interval < 0 {
		return nil, errors.Errorf("query %s has a negative interval", spec.Key)
	}
	if spec.Timeout <= 0 {
		spec.Timeout = spec.Interval
		if spec.Timeout == 0 {
			spec.Timeout = defaultOneShotTimeout
		}
	}
	if spec.Endpoint == "" {
		spec.Endpoint = spec.Key
	}

	q := &Query[T]{
		spec:   spec,
		poller: p,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrQueryClosed)
	}
	if _, dup := p.queries[spec.Key]; dup {
		p.mu.Unlock()
		return nil, errors.Errorf("query %s already subscribed", spec.Key)
	}
	p.queries[spec.Key] = q
	p.mu.Unlock()

	go q.run()
	return q, nil
}

// KickAll makes every query re-evaluate its enabled predicate now.
func (p *Poller) KickAll() {
	for _, q := range p.snapshot() {
		q.Kick()
	}
}

// Close stops every query and refuses new subscriptions.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	for _, q := range p.snapshot() {
		q.Close()
	}
}

// Len returns the number of live queries.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

func (p *Poller) snapshot() []pollable {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pollable, 0, len(p.queries))
	for _, q := range p.queries {
		out = append(out, q)
	}
	return out
}

func (p *Poller) remove(key string, q pollable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queries[key] == q {
		delete(p.queries, key)
	}
}

// Query is one polled read and its last value.
type Query[T any] struct {
	spec   QuerySpec[T]
	poller *Poller
	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	mu        sync.RWMutex
	value     T
	has       bool
	fetchedAt time.Time
	err       error
	closed    bool
}

func (q *Query[T]) Key() string { return q.spec.Key }

// Value returns the last read while it is fresh and the query is enabled.
// A value is fresh for one Interval after it was read, failed refreshes
// included; one-shot values never expire.
func (q *Query[T]) Value() (T, bool) {
	return q.valueAt(time.Now())
}

func (q *Query[T]) valueAt(now time.Time) (T, bool) {
	var zero T
	if !q.enabled() {
		return zero, false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || !q.has {
		return zero, false
	}
	if q.spec.Interval > 0 && now.Sub(q.fetchedAt) > q.spec.Interval {
		return zero, false
	}
	return q.value, true
}

// FetchedAt returns when the current value was read.
func (q *Query[T]) FetchedAt() time.Time {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.fetchedAt
}

// Err returns the error of the last failed read, cleared by the next success.
func (q *Query[T]) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.err
}

// Refetch reads now. Concurrent refetches share the in-flight read.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	var zero T
	if q.isClosed() {
		return zero, errors.WithStack(ErrQueryClosed)
	}
	if !q.enabled() {
		return zero, errors.WithStack(ErrQueryDisabled)
	}
	return q.fetch(ctx)
}

func (q *Query[T]) RefetchNow(ctx context.Context) error {
	_, err := q.Refetch(ctx)
	return err
}

// Kick asks the polling loop to re-evaluate now without waiting for the ticker.
func (q *Query[T]) Kick() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Close stops polling and drops the value.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	var zero T
	q.closed, q.has, q.value = true, false, zero
	q.mu.Unlock()

	q.cancel()
	q.poller.remove(q.spec.Key, q)
}

// Done is closed once the polling goroutine has exited.
func (q *Query[T]) Done() <-chan struct{} { return q.done }

func (q *Query[T]) run() {
	defer close(q.done)

	var tick <-chan time.Time
	if q.spec.Interval > 0 {
		ticker := time.NewTicker(q.spec.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	q.poll()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-tick:
			q.poll()
		case <-q.kick:
			q.poll()
		}
	}
}

func (q *Query[T]) poll() {
	if !q.enabled() {
		q.drop()
		return
	}
	if q.spec.Interval == 0 && q.hasValue() {
		return
	}
	_, _ = q.fetch(q.ctx)
}

func (q *Query[T]) fetch(ctx context.Context) (T, error) {
	var zero T
	// the pointer keeps a re-created query from joining its predecessor's flight
	flightKey := fmt.Sprintf("%s#%p", q.spec.Key, q)
	ch := q.poller.group.DoChan(flightKey, func() (any, error) {
		return q.load()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Query[T]) load() (T, error) {
	ctx, cancel := context.WithTimeout(q.ctx, q.spec.Timeout)
	defer cancel()

	start := time.Now()
	v, err := q.spec.Fetch(ctx)
	q.poller.metrics.ObserveRead(q.poller.subsystem, q.spec.Endpoint, time.Since(start), err)

	if q.ctx.Err() != nil {
		return v, errors.WithStack(ErrQueryClosed)
	}
	if err != nil {
		err = types.AsNetworkError("read "+q.spec.Endpoint, err)
		q.mu.Lock()
		q.err = err
		q.mu.Unlock()
		q.poller.logger.Warn("ledger read failed",
			zap.String("query", q.spec.Key),
			zap.String("endpoint", q.spec.Endpoint),
			zap.Error(err))
		if q.spec.OnError != nil {
			q.spec.OnError(err)
		}
		q.poller.readError(err)
		return v, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return v, errors.WithStack(ErrQueryClosed)
	}
	q.value, q.has, q.fetchedAt, q.err = v, true, time.Now(), nil
	q.mu.Unlock()

	if q.spec.OnUpdate != nil {
		q.spec.OnUpdate(v)
	}
	return v, nil
}

func (q *Query[T]) enabled() bool {
	return q.spec.Enabled == nil || q.spec.Enabled()
}

func (q *Query[T]) hasValue() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.has
}

func (q *Query[T]) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Query[T]) drop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	q.value, q.has, q.err = zero, false, nil
}
