package ledgersync

import (
	"testing"
	"time"

	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func waitSchedule(t *testing.T, s *Schedule) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("schedule %s did not finish", s.ID)
	}
}

func TestReconcilerFiresEveryOffsetOnce(t *testing.T) {
	r := NewReconciler("vault", []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}, nil, nil)
	defer r.Close()

	balance := &countingRefresher{key: "balance"}
	staked := &countingRefresher{key: "totalStaked"}
	s, armed := r.Arm("0xabc", func() []Refresher { return []Refresher{balance, staked} }, nil)
	require.True(t, armed)
	require.Equal(t, 1, r.Active())

	waitSchedule(t, s)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, s.Executed())
	require.Equal(t, int32(3), balance.calls.Load())
	require.Equal(t, int32(3), staked.calls.Load())
	require.NoError(t, s.Err())
	require.Zero(t, r.Active())
}

func TestReconcilerDoesNotRearmActiveID(t *testing.T) {
	r := NewReconciler("game", []time.Duration{20 * time.Millisecond}, nil, nil)
	defer r.Close()

	target := &countingRefresher{key: "round"}
	targets := func() []Refresher { return []Refresher{target} }
	s1, armed := r.Arm("0x01", targets, nil)
	require.True(t, armed)
	s2, armed := r.Arm("0x01", targets, nil)
	require.False(t, armed)
	require.Same(t, s1, s2)

	waitSchedule(t, s1)
	require.Equal(t, int32(1), target.calls.Load())
}

func TestReconcilerRecordsStaleDataRace(t *testing.T) {
	tests := []struct {
		name    string
		expect  func() bool
		wantErr error
	}{
		{"no expectation", nil, nil},
		{"expectation met", func() bool { return true }, nil},
		{"still stale", func() bool { return false }, types.ErrStaleDataRace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler("market", []time.Duration{0, 5 * time.Millisecond}, nil, nil)
			defer r.Close()

			disabled := &countingRefresher{key: "vote", err: errors.WithStack(ErrQueryDisabled)}
			s, _ := r.Arm("0x02", func() []Refresher { return []Refresher{disabled} }, tt.expect)
			waitSchedule(t, s)

			require.Equal(t, int32(2), disabled.calls.Load())
			if tt.wantErr == nil {
				require.NoError(t, s.Err())
			} else {
				require.ErrorIs(t, s.Err(), tt.wantErr)
			}
		})
	}
}

func TestReconcilerCloseStopsPendingOffsets(t *testing.T) {
	r := NewReconciler("vault", []time.Duration{100 * time.Millisecond}, nil, nil)
	target := &countingRefresher{key: "balance"}
	_, armed := r.Arm("0x03", func() []Refresher { return []Refresher{target} }, nil)
	require.True(t, armed)

	r.Close()
	time.Sleep(150 * time.Millisecond)
	require.Zero(t, target.calls.Load())

	s, armed := r.Arm("0x04", func() []Refresher { return []Refresher{target} }, nil)
	require.True(t, armed)
	waitSchedule(t, s)
	require.Empty(t, s.Executed())
}

func TestReconcilerSortsOffsets(t *testing.T) {
	offsets := []time.Duration{4 * time.Second, time.Second, 2 * time.Second}
	r := NewReconciler("vault", offsets, nil, nil)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, r.Offsets())
	require.Equal(t, 4*time.Second, offsets[0], "caller slice must not be reordered")
}
