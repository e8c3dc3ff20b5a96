package ledgersync

import (
	"sync"

	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"go.uber.org/zap"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	if k == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Outcome is the user-facing result of one settled submission.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	// Link is the explorer URL of the transaction, success only.
	Link string
}

// Gate emits at most one outcome per settlement identifier. It remembers only
// the last emitted identifier, so re-observing the current settlement is a
// no-op while a new identifier always emits.
type Gate struct {
	subsystem string
	sink      types.NotificationSink
	logger    *zap.Logger
	metrics   *metrics.Registry

	mu   sync.Mutex
	last string
}

func NewGate(subsystem string, sink types.NotificationSink, logger *zap.Logger, m *metrics.Registry) *Gate {
	return &Gate{
		subsystem: subsystem,
		sink:      sink,
		logger:    logging.OrGlobal(logger).With(zap.String("subsystem", subsystem)),
		metrics:   m,
	}
}

// OnSettled emits outcome for id unless id was the last one emitted. It
// reports whether an event was emitted.
func (g *Gate) OnSettled(id string, outcome Outcome) bool {
	if id == "" {
		return false
	}
	g.mu.Lock()
	if id == g.last {
		g.mu.Unlock()
		return false
	}
	g.last = id
	g.mu.Unlock()

	g.logger.Debug("settlement notified", zap.String("id", id), zap.Stringer("kind", outcome.Kind))
	g.metrics.Notified(g.subsystem, outcome.Kind.String())
	if g.sink == nil {
		return true
	}
	switch outcome.Kind {
	case OutcomeSuccess:
		g.sink.EmitSuccess(outcome.Message, outcome.Link)
	default:
		g.sink.EmitFailure(outcome.Message)
	}
	return true
}

// Last returns the last identifier an outcome was emitted for.
func (g *Gate) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
