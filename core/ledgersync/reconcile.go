package ledgersync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Schedule is one armed reconciliation cascade.
type Schedule struct {
	ID      string
	Offsets []time.Duration

	mu       sync.Mutex
	executed []time.Duration
	timers   []*time.Timer
	err      error
	done     chan struct{}
}

// Executed returns the offsets that have fired, in firing order.
func (s *Schedule) Executed() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.executed...)
}

// Done is closed after the last offset ran.
func (s *Schedule) Done() <-chan struct{} { return s.done }

// Err is ErrStaleDataRace when the expectation still failed after the last offset.
func (s *Schedule) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Reconciler re-reads a subsystem at fixed offsets after each confirmation.
type Reconciler struct {
	subsystem string
	offsets   []time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Registry

	mu     sync.Mutex
	active map[string]*Schedule
	closed bool
}

func NewReconciler(subsystem string, offsets []time.Duration, logger *zap.Logger, m *metrics.Registry) *Reconciler {
	sorted := append([]time.Duration(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Reconciler{
		subsystem: subsystem,
		offsets:   sorted,
		timeout:   10 * time.Second,
		logger:    logging.OrGlobal(logger).With(zap.String("subsystem", subsystem)),
		metrics:   m,
		active:    make(map[string]*Schedule),
	}
}

// Offsets returns the ascending cascade offsets.
func (r *Reconciler) Offsets() []time.Duration {
	return append([]time.Duration(nil), r.offsets...)
}

// Arm starts a cascade for id. targets is resolved at each offset so queries
// re-created in between are included. It returns false, with the existing
// schedule, if id is already armed.
func (r *Reconciler) Arm(id string, targets func() []Refresher, expect func() bool) (*Schedule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[id]; ok {
		return s, false
	}

	s := &Schedule{
		ID:      id,
		Offsets: r.Offsets(),
		done:    make(chan struct{}),
	}
	if r.closed || len(s.Offsets) == 0 {
		close(s.done)
		return s, true
	}
	r.active[id] = s

	s.mu.Lock()
	for _, offset := range s.Offsets {
		offset := offset
		s.timers = append(s.timers, time.AfterFunc(offset, func() {
			r.fire(s, offset, targets, expect)
		}))
	}
	s.mu.Unlock()

	r.logger.Debug("reconciliation armed", zap.String("id", id), zap.Durations("offsets", s.Offsets))
	return s, true
}

func (r *Reconciler) fire(s *Schedule, offset time.Duration, targets func() []Refresher, expect func() bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var list []Refresher
	if targets != nil {
		list = targets()
	}
	for _, t := range list {
		err := t.RefetchNow(ctx)
		r.metrics.CascadeRefetch(r.subsystem)
		if err != nil && !errors.Is(err, ErrQueryDisabled) && !errors.Is(err, ErrQueryClosed) {
			r.logger.Warn("cascade refetch failed",
				zap.String("id", s.ID),
				zap.String("query", t.Key()),
				zap.Duration("offset", offset),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.executed = append(s.executed, offset)
	last := len(s.executed) == len(s.Offsets)
	s.mu.Unlock()
	if !last {
		return
	}

	// after the final offset the current reads are accepted as truth either way
	if expect != nil && !expect() {
		s.mu.Lock()
		s.err = errors.Wrapf(types.ErrStaleDataRace, "cascade %s", s.ID)
		s.mu.Unlock()
		r.metrics.StaleRace(r.subsystem)
		r.logger.Warn("ledger still stale after reconciliation", zap.String("id", s.ID))
	}

	r.mu.Lock()
	delete(r.active, s.ID)
	r.mu.Unlock()
	close(s.done)
}

// Active returns the number of cascades still running.
func (r *Reconciler) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Close stops pending timers. Cascades cut short are dropped without closing Done.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	active := r.active
	r.active = make(map[string]*Schedule)
	r.mu.Unlock()

	for _, s := range active {
		s.mu.Lock()
		for _, t := range s.timers {
			t.Stop()
		}
		s.mu.Unlock()
	}
}
