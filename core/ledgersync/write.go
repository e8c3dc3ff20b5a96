package ledgersync

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WriteRequest describes one mutation. Send performs the signing and
// submission and returns the assigned hash.
type WriteRequest struct {
	Name  string
	Args  []any
	Value *big.Int
	Send  func(ctx context.Context) (common.Hash, error)
	// Expect, when set, reports whether reads reflect the mutation yet.
	// It is checked after the last reconciliation offset.
	Expect func() bool
}

// Transition is published for every phase change.
type Transition struct {
	Subsystem string
	From      types.Phase
	To        types.Phase
	Operation types.WriteOperation
	Receipt   *types.Receipt
	Expect    func() bool
}

// Handle tracks one submitted operation until it settles.
type Handle struct {
	id   string
	done chan struct{}

	mu  sync.Mutex
	op  types.WriteOperation
	rcp *types.Receipt
}

func (h *Handle) ID() string { return h.id }

// Done is closed when the operation reaches Confirmed or Failed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Operation returns the latest view of the operation.
func (h *Handle) Operation() types.WriteOperation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op
}

// Wait blocks until settlement and returns the receipt, or the failure.
func (h *Handle) Wait(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rcp, h.op.Err
}

func (h *Handle) update(op types.WriteOperation, rcp *types.Receipt) {
	h.mu.Lock()
	h.op = op
	if rcp != nil {
		h.rcp = rcp
	}
	h.mu.Unlock()
}

// WriteMachine runs at most one non-terminal write at a time.
type WriteMachine struct {
	subsystem string
	watcher   *Watcher
	logger    *zap.Logger
	metrics   *metrics.Registry

	mu        sync.Mutex
	current   *types.WriteOperation
	last      types.WriteOperation
	listeners []func(Transition)
}

func NewWriteMachine(subsystem string, watcher *Watcher, logger *zap.Logger, m *metrics.Registry) *WriteMachine {
	return &WriteMachine{
		subsystem: subsystem,
		watcher:   watcher,
		logger:    logging.OrGlobal(logger).With(zap.String("subsystem", subsystem)),
		metrics:   m,
	}
}

// OnTransition registers fn for every phase change. Listeners run synchronously
// and in registration order, outside the machine lock.
func (m *WriteMachine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Phase returns the phase of the current operation, Idle when there is none.
func (m *WriteMachine) Phase() types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return types.PhaseIdle
	}
	return m.current.Phase
}

// Last returns the most recently settled operation.
func (m *WriteMachine) Last() types.WriteOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Reset clears a Confirmed operation back to Idle. It is a no-op while an
// operation is in flight.
func (m *WriteMachine) Reset() {
	m.mu.Lock()
	if m.current == nil || !m.current.Phase.Terminal() || m.current.Phase == types.PhaseIdle {
		m.mu.Unlock()
		return
	}
	t := m.moveLocked(types.PhaseIdle)
	m.current = nil
	m.mu.Unlock()
	m.publish(t)
}

// Submit starts a write. It blocks through signing and submission and returns
// once a hash is assigned; finality is awaited in the background. A second
// Submit while an operation is non-terminal fails with ErrOperationInFlight
// and leaves the first operation untouched.
func (m *WriteMachine) Submit(ctx context.Context, req WriteRequest) (*Handle, error) {
	if req.Name == "" || req.Send == nil {
		return nil, errors.New("write request needs a name and a send function")
	}

	m.mu.Lock()
	if m.current != nil && !m.current.Phase.Terminal() {
		name, phase := m.current.Name, m.current.Phase
		m.mu.Unlock()
		return nil, errors.Wrapf(types.ErrOperationInFlight, "%s is still %s", name, phase)
	}
	op := &types.WriteOperation{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Args:      req.Args,
		Value:     req.Value,
		Phase:     types.PhaseIdle,
		CreatedAt: time.Now(),
	}
	m.current = op
	h := &Handle{id: op.ID, done: make(chan struct{}), op: *op}
	submitting := m.moveLocked(types.PhaseSubmitting)
	awaiting := m.moveLocked(types.PhaseAwaitingSignature)
	m.mu.Unlock()

	m.metrics.WriteStarted(m.subsystem)
	m.publish(submitting)
	m.publish(awaiting)
	h.update(awaiting.Operation, nil)

	hash, err := req.Send(ctx)
	if err == nil && hash == (common.Hash{}) {
		err = errors.New("ledger returned an empty transaction hash")
	}
	if err != nil {
		err = types.AsNetworkError("submit "+req.Name, err)
		m.fail(h, op, err, req.Expect)
		return h, err
	}

	m.mu.Lock()
	op.TxHash = hash
	submitted := m.moveLocked(types.PhaseSubmitted)
	confirming := m.moveLocked(types.PhaseConfirming)
	m.mu.Unlock()

	m.logger.Info("write submitted",
		zap.String("operation", req.Name),
		zap.String("opId", op.ID),
		zap.String("txHash", hash.Hex()))
	m.publish(submitted)
	m.publish(confirming)
	h.update(confirming.Operation, nil)

	// a submitted mutation cannot be withdrawn, so the watch outlives ctx
	go m.await(context.WithoutCancel(ctx), h, op, req.Expect)

	return h, nil
}

func (m *WriteMachine) await(ctx context.Context, h *Handle, op *types.WriteOperation, expect func() bool) {
	receipt, err := m.watcher.Await(ctx, op.TxHash)
	if err != nil {
		m.fail(h, op, err, expect)
		return
	}

	m.mu.Lock()
	op.SettledAt = time.Now()
	confirmed := m.moveLocked(types.PhaseConfirmed)
	confirmed.Receipt = receipt
	confirmed.Expect = expect
	m.last = *op
	m.mu.Unlock()

	m.logger.Info("write confirmed",
		zap.String("operation", op.Name),
		zap.String("txHash", op.TxHash.Hex()))
	m.metrics.WriteSettled(m.subsystem, op.Name, types.PhaseConfirmed.String())
	h.update(confirmed.Operation, receipt)
	m.publish(confirmed)
	close(h.done)
}

// fail surfaces err through a Failed transition, then resets to Idle.
func (m *WriteMachine) fail(h *Handle, op *types.WriteOperation, err error, expect func() bool) {
	m.mu.Lock()
	op.Err = err
	op.SettledAt = time.Now()
	failed := m.moveLocked(types.PhaseFailed)
	failed.Expect = expect
	m.last = *op
	idle := m.moveLocked(types.PhaseIdle)
	m.current = nil
	m.mu.Unlock()

	m.logger.Warn("write failed",
		zap.String("operation", op.Name),
		zap.String("opId", op.ID),
		zap.String("txHash", op.TxHash.Hex()),
		zap.Error(err))
	m.metrics.WriteSettled(m.subsystem, op.Name, types.PhaseFailed.String())
	h.update(failed.Operation, nil)
	m.publish(failed)
	m.publish(idle)
	close(h.done)
}

// moveLocked sets the current operation's phase and returns the transition.
func (m *WriteMachine) moveLocked(to types.Phase) Transition {
	from := m.current.Phase
	m.current.Phase = to
	return Transition{
		Subsystem: m.subsystem,
		From:      from,
		To:        to,
		Operation: *m.current,
	}
}

func (m *WriteMachine) publish(t Transition) {
	m.mu.Lock()
	listeners := append([]func(Transition){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Debug("write transition",
		zap.String("operation", t.Operation.Name),
		zap.Stringer("from", t.From),
		zap.Stringer("to", t.To))
	for _, fn := range listeners {
		fn(t)
	}
}
