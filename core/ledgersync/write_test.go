package ledgersync

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu  sync.Mutex
	all []Transition
}

func (l *transitionLog) record(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, t)
}

func (l *transitionLog) phases() []types.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Phase, 0, len(l.all))
	for _, t := range l.all {
		out = append(out, t.To)
	}
	return out
}

func newTestMachine(waiter FinalityWaiter) (*WriteMachine, *transitionLog) {
	m := NewWriteMachine("test", NewWatcher(waiter, time.Millisecond, nil), nil, nil)
	log := &transitionLog{}
	m.OnTransition(log.record)
	return m, log
}

func sendHash(h common.Hash) func(context.Context) (common.Hash, error) {
	return func(context.Context) (common.Hash, error) { return h, nil }
}

func TestWriteMachineConfirms(t *testing.T) {
	m, log := newTestMachine(&mockWaiter{})

	h, err := m.Submit(context.Background(), WriteRequest{
		Name:  "deposit",
		Value: big.NewInt(100),
		Send:  sendHash(hashOf(1)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())

	receipt, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Equal(t, hashOf(1), receipt.TxHash)

	require.Equal(t, []types.Phase{
		types.PhaseSubmitting,
		types.PhaseAwaitingSignature,
		types.PhaseSubmitted,
		types.PhaseConfirming,
		types.PhaseConfirmed,
	}, log.phases())

	op := h.Operation()
	require.Equal(t, types.PhaseConfirmed, op.Phase)
	require.Equal(t, hashOf(1), op.TxHash)
	require.Equal(t, "deposit", m.Last().Name)
	require.Equal(t, types.PhaseConfirmed, m.Phase())

	m.Reset()
	require.Equal(t, types.PhaseIdle, m.Phase())
	require.Equal(t, types.PhaseIdle, log.phases()[len(log.phases())-1])
}

func TestWriteMachineRejectsSecondSubmitWhileInFlight(t *testing.T) {
	m, _ := newTestMachine(&mockWaiter{})

	signed := make(chan struct{})
	type result struct {
		h   *Handle
		err error
	}
	first := make(chan result, 1)
	go func() {
		h, err := m.Submit(context.Background(), WriteRequest{
			Name: "vote",
			Send: func(ctx context.Context) (common.Hash, error) {
				<-signed
				return hashOf(2), nil
			},
		})
		first <- result{h, err}
	}()

	require.Eventually(t, func() bool {
		return m.Phase() == types.PhaseAwaitingSignature
	}, time.Second, time.Millisecond)

	sent := false
	h2, err := m.Submit(context.Background(), WriteRequest{
		Name: "claimReward",
		Send: func(context.Context) (common.Hash, error) {
			sent = true
			return hashOf(3), nil
		},
	})
	require.ErrorIs(t, err, types.ErrOperationInFlight)
	require.Nil(t, h2)
	require.False(t, sent)
	require.Equal(t, types.PhaseAwaitingSignature, m.Phase())

	close(signed)
	res := <-first
	require.NoError(t, res.err)
	_, err = res.h.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, hashOf(2), res.h.Operation().TxHash)
}

func TestWriteMachineFailures(t *testing.T) {
	tests := []struct {
		name      string
		send      func(context.Context) (common.Hash, error)
		waiter    *mockWaiter
		wantErr   error
		wantHash  bool
		submitErr bool
	}{
		{
			name:      "signer declines",
			send:      func(context.Context) (common.Hash, error) { return common.Hash{}, errors.WithStack(types.ErrUserRejected) },
			waiter:    &mockWaiter{},
			wantErr:   types.ErrUserRejected,
			submitErr: true,
		},
		{
			name:      "submission transport failure",
			send:      func(context.Context) (common.Hash, error) { return common.Hash{}, errors.New("dial tcp: refused") },
			waiter:    &mockWaiter{},
			wantErr:   types.ErrNetwork,
			submitErr: true,
		},
		{
			name:      "empty hash",
			send:      sendHash(common.Hash{}),
			waiter:    &mockWaiter{},
			wantErr:   types.ErrNetwork,
			submitErr: true,
		},
		{
			name: "reverted on chain",
			send: sendHash(hashOf(4)),
			waiter: &mockWaiter{waitTxFunc: func(ctx context.Context, h common.Hash, _ time.Duration) (*types.Receipt, error) {
				return &types.Receipt{TxHash: h, Status: 0, RevertReason: "Voting locked"}, nil
			}},
			wantErr:  types.ErrRevertedOnChain,
			wantHash: true,
		},
		{
			name: "watch fails",
			send: sendHash(hashOf(5)),
			waiter: &mockWaiter{waitTxFunc: func(context.Context, common.Hash, time.Duration) (*types.Receipt, error) {
				return nil, errors.New("relay timeout")
			}},
			wantErr:  types.ErrNetwork,
			wantHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, log := newTestMachine(tt.waiter)

			h, err := m.Submit(context.Background(), WriteRequest{Name: "withdraw", Send: tt.send})
			require.NotNil(t, h)
			if tt.submitErr {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			_, err = h.Wait(context.Background())
			require.ErrorIs(t, err, tt.wantErr)

			phases := log.phases()
			require.Equal(t, types.PhaseFailed, phases[len(phases)-2])
			require.Equal(t, types.PhaseIdle, phases[len(phases)-1])
			require.Equal(t, types.PhaseIdle, m.Phase())

			last := m.Last()
			require.Equal(t, types.PhaseFailed, last.Phase)
			require.Equal(t, tt.wantHash, last.HasHash())
			if !tt.wantHash {
				require.True(t, strings.HasPrefix(last.SettlementID(), "op:"))
			}

			// the machine accepts a new submission after a failure
			h2, err := m.Submit(context.Background(), WriteRequest{Name: "withdraw", Send: sendHash(hashOf(9))})
			require.NoError(t, err)
			require.NotNil(t, h2)
		})
	}
}

func TestWriteMachineRejectsIncompleteRequest(t *testing.T) {
	m, log := newTestMachine(&mockWaiter{})

	_, err := m.Submit(context.Background(), WriteRequest{Name: "deposit"})
	require.Error(t, err)
	_, err = m.Submit(context.Background(), WriteRequest{Send: sendHash(hashOf(1))})
	require.Error(t, err)
	require.Empty(t, log.phases())
}

func TestWriteMachineWatchOutlivesSubmitContext(t *testing.T) {
	release := make(chan struct{})
	m, _ := newTestMachine(&mockWaiter{waitTxFunc: func(ctx context.Context, h common.Hash, _ time.Duration) (*types.Receipt, error) {
		select {
		case <-release:
			return &types.Receipt{TxHash: h, Status: types.ReceiptStatusSuccessful}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	h, err := m.Submit(ctx, WriteRequest{Name: "deposit", Send: sendHash(hashOf(6))})
	require.NoError(t, err)
	cancel()
	close(release)

	_, err = h.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.PhaseConfirmed, h.Operation().Phase)
}
