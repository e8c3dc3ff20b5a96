package ledgersync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/types"
)

// mockWaiter implements FinalityWaiter for testing
type mockWaiter struct {
	waitTxFunc func(ctx context.Context, txHash common.Hash, interval time.Duration) (*types.Receipt, error)
}

func (m *mockWaiter) WaitTx(ctx context.Context, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if m.waitTxFunc != nil {
		return m.waitTxFunc(ctx, txHash, interval)
	}
	return &types.Receipt{TxHash: txHash, Status: types.ReceiptStatusSuccessful}, nil
}

var _ FinalityWaiter = (*mockWaiter)(nil)

type notice struct {
	message string
	link    string
}

// recordingSink implements types.NotificationSink for testing
type recordingSink struct {
	mu        sync.Mutex
	successes []notice
	failures  []string
}

func (s *recordingSink) EmitSuccess(message, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, notice{message: message, link: link})
}

func (s *recordingSink) EmitFailure(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, message)
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.successes), len(s.failures)
}

var _ types.NotificationSink = (*recordingSink)(nil)

// countingRefresher implements Refresher for testing
type countingRefresher struct {
	key   string
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Key() string { return r.key }

func (r *countingRefresher) RefetchNow(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func hashOf(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}
