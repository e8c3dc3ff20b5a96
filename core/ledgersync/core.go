package ledgersync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"go.uber.org/zap"
)

// CoreConfig parameterizes one subsystem.
type CoreConfig struct {
	Name            string
	ReceiptInterval time.Duration
	Cascade         []time.Duration
	ExplorerURL     string
	// Messages maps an operation name to its success message.
	Messages map[string]string
	Sink     types.NotificationSink
	Logger   *zap.Logger
	Metrics  *metrics.Registry
}

// Core bundles the read, write and settlement primitives of one subsystem and
// wires them together: a confirmation notifies through the gate and, for a new
// identifier, arms a reconciliation cascade over the refresh targets; a
// failure notifies and lands in the error slot. Failed reads land in the error
// slot without notifying.
type Core struct {
	Name       string
	Poller     *Poller
	Machine    *WriteMachine
	Reconciler *Reconciler
	Gate       *Gate
	Errors     *ErrorSlot
	Logger     *zap.Logger

	explorer string
	messages map[string]string

	mu        sync.RWMutex
	targets   func() []Refresher
	schedules []*Schedule
}

func NewCore(cfg CoreConfig, waiter FinalityWaiter) *Core {
	logger := logging.OrGlobal(cfg.Logger)
	c := &Core{
		Name:       cfg.Name,
		Poller:     NewPoller(cfg.Name, logger, cfg.Metrics),
		Machine:    NewWriteMachine(cfg.Name, NewWatcher(waiter, cfg.ReceiptInterval, logger), logger, cfg.Metrics),
		Reconciler: NewReconciler(cfg.Name, cfg.Cascade, logger, cfg.Metrics),
		Gate:       NewGate(cfg.Name, cfg.Sink, logger, cfg.Metrics),
		Errors:     &ErrorSlot{},
		Logger:     logger.With(zap.String("subsystem", cfg.Name)),
		explorer:   strings.TrimRight(cfg.ExplorerURL, "/"),
		messages:   cfg.Messages,
	}
	c.Machine.OnTransition(c.onTransition)
	c.Poller.OnReadError(c.Errors.Set)
	return c
}

// SetRefreshTargets sets the queries a cascade refetches. fn is evaluated at
// every offset.
func (c *Core) SetRefreshTargets(fn func() []Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = fn
}

// Submit hands req to the write machine. A refusal that never started an
// operation still lands in the error slot.
func (c *Core) Submit(ctx context.Context, req WriteRequest) (*Handle, error) {
	h, err := c.Machine.Submit(ctx, req)
	if err != nil && h == nil {
		c.Errors.Set(err)
	}
	return h, err
}

// Fail records a client-side refusal and returns it.
func (c *Core) Fail(err error) error {
	c.Errors.Set(err)
	return err
}

// TxLink returns the explorer URL of a transaction, empty without an explorer.
func (c *Core) TxLink(hash common.Hash) string {
	if c.explorer == "" {
		return ""
	}
	return c.explorer + "/transaction/" + hash.Hex()
}

// LastSchedule returns the most recently armed cascade, nil if none.
func (c *Core) LastSchedule() *Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.schedules) == 0 {
		return nil
	}
	return c.schedules[len(c.schedules)-1]
}

func (c *Core) Close() {
	c.Reconciler.Close()
	c.Poller.Close()
}

func (c *Core) onTransition(t Transition) {
	switch t.To {
	case types.PhaseConfirmed:
		id := t.Operation.TxHash.Hex()
		emitted := c.Gate.OnSettled(id, Outcome{
			Kind:    OutcomeSuccess,
			Message: c.successMessage(t.Operation.Name),
			Link:    c.TxLink(t.Operation.TxHash),
		})
		if !emitted {
			return
		}
		s, _ := c.Reconciler.Arm(id, c.refreshTargets, t.Expect)
		c.mu.Lock()
		c.schedules = append(c.schedules[max(0, len(c.schedules)-7):], s)
		c.mu.Unlock()

	case types.PhaseFailed:
		err := t.Operation.Err
		c.Gate.OnSettled(t.Operation.SettlementID(), Outcome{
			Kind:    OutcomeFailure,
			Message: fmt.Sprintf("%s failed: %s", t.Operation.Name, types.Describe(err)),
		})
		c.Errors.Set(err)
	}
}

func (c *Core) refreshTargets() []Refresher {
	c.mu.RLock()
	fn := c.targets
	c.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (c *Core) successMessage(op string) string {
	if msg, ok := c.messages[op]; ok {
		return msg
	}
	return op + " confirmed"
}
