package mirror

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestVaultDepositReconcilesBalance(t *testing.T) {
	f := newFixture(t)
	f.d.Ledger.SetWallet(alice, units("1000000000000000000000"))
	f.session.Connect(alice)
	v := f.vault(t)

	eventually(t, func() bool {
		b, ok := v.Power()
		return ok && b.Sign() == 0
	}, "initial balance read")

	h, err := v.Deposit(context.Background(), "100")
	require.NoError(t, err)
	waitHandle(t, h)

	sent := f.d.Ledger.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "deposit", sent[0].Method)
	require.Equal(t, "100000000000000000000", sent[0].Value.String())

	// polling is idle, so only the cascade can surface the new balance
	s := v.LastCascade()
	waitCascade(t, s)
	require.NoError(t, s.Err())

	b, ok := v.Power()
	require.True(t, ok)
	require.Equal(t, "10000000000", b.String())

	snap := v.Snapshot()
	require.True(t, snap.Connected)
	require.Equal(t, alice, snap.Account)
	require.Equal(t, "10000000000", snap.TotalStaked.String())
	require.Equal(t, "900000000000000000000", snap.WalletBalance.String())

	successes, failures := f.sink.Snapshot()
	require.Equal(t, []string{"Deposit confirmed"}, successes)
	require.Empty(t, failures)
	require.Equal(t, "https://hashscan.io/testnet/transaction/"+sent[0].Hash.Hex(), f.sink.Links[0])
	require.Equal(t, types.PhaseConfirmed, v.Phase())
	require.NoError(t, v.Err())
}

func TestVaultWithdraw(t *testing.T) {
	f := newFixture(t)
	f.d.SetBalance(alice, units("500000000")) // 5.0
	f.session.Connect(alice)
	v := f.vault(t)

	h, err := v.Withdraw(context.Background(), "2.5")
	require.NoError(t, err)
	waitHandle(t, h)
	waitCascade(t, v.LastCascade())

	b, ok := v.Power()
	require.True(t, ok)
	require.Equal(t, "250000000", b.String())
	require.Equal(t, "250000000", f.d.Balance(alice).String())
	require.Equal(t, "withdraw", f.d.Ledger.Sent()[0].Method)
	require.Equal(t, "250000000", f.d.Ledger.Sent()[0].Args[0].(*big.Int).String())
}

func TestVaultRefusalsNeverReachTheLedger(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		wallet  string
		balance string
		run     func(context.Context, *Vault) error
		want    error
	}{
		{
			name: "deposit while disconnected",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "1")
				return err
			},
			want: types.ErrNotConnected,
		},
		{
			name:    "deposit of garbage",
			connect: true,
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "ten")
				return err
			},
			want: types.ErrInvalidAmount,
		},
		{
			name:    "deposit of zero",
			connect: true,
			wallet:  "1000000000000000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "0")
				return err
			},
			want: types.ErrInvalidAmount,
		},
		{
			name:    "deposit beyond value precision",
			connect: true,
			wallet:  "1000000000000000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "0.0000000000000000001")
				return err
			},
			want: types.ErrInvalidAmount,
		},
		{
			name:    "deposit below one vault unit",
			connect: true,
			wallet:  "1000000000000000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "0.000000009")
				return err
			},
			want: types.ErrInvalidAmount,
		},
		{
			name:    "deposit above wallet",
			connect: true,
			wallet:  "1000000000000000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Deposit(ctx, "2")
				return err
			},
			want: types.ErrInsufficientFunds,
		},
		{
			name:    "withdraw above balance",
			connect: true,
			balance: "100000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Withdraw(ctx, "1.5")
				return err
			},
			want: types.ErrInsufficientFunds,
		},
		{
			name:    "withdraw beyond storage precision",
			connect: true,
			balance: "100000000",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Withdraw(ctx, "0.000000001")
				return err
			},
			want: types.ErrInvalidAmount,
		},
		{
			name: "withdraw while disconnected",
			run: func(ctx context.Context, v *Vault) error {
				_, err := v.Withdraw(ctx, "1")
				return err
			},
			want: types.ErrNotConnected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.wallet != "" {
				f.d.Ledger.SetWallet(alice, units(tt.wallet))
			}
			if tt.balance != "" {
				f.d.SetBalance(alice, units(tt.balance))
			}
			if tt.connect {
				f.session.Connect(alice)
			}
			v := f.vault(t)

			err := tt.run(context.Background(), v)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, v.Err(), tt.want)
			require.Empty(t, f.d.Ledger.Sent())
			require.Equal(t, types.PhaseIdle, v.Phase())

			successes, failures := f.sink.Counts()
			require.Zero(t, successes)
			require.Zero(t, failures)

			v.DismissError()
			require.NoError(t, v.Err())
		})
	}
}

func TestVaultDeclinedSignatureNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	f.d.SetBalance(alice, units("100000000"))
	f.session.Connect(alice)
	v := f.vault(t)

	f.d.Ledger.RejectNext(errors.WithStack(types.ErrUserRejected))
	h, err := v.Withdraw(context.Background(), "1")
	require.ErrorIs(t, err, types.ErrUserRejected)
	require.NotNil(t, h)

	_, failures := f.sink.Snapshot()
	require.Equal(t, []string{"withdraw failed: you declined the signature request"}, failures)
	require.ErrorIs(t, v.Err(), types.ErrUserRejected)
	require.Equal(t, types.PhaseIdle, v.Phase())
	require.Nil(t, v.LastCascade())
}

func TestVaultFollowsSession(t *testing.T) {
	f := newFixture(t)
	f.d.SetBalance(alice, units("700000000"))
	f.d.SetBalance(bob, units("900000000"))
	f.session.Connect(alice)
	v := f.vault(t)

	eventually(t, func() bool {
		b, ok := v.Power()
		return ok && b.String() == "700000000"
	}, "alice balance")

	f.session.Connect(bob)
	eventually(t, func() bool {
		b, ok := v.Power()
		return ok && b.String() == "900000000"
	}, "bob balance")
	require.Equal(t, bob, v.Snapshot().Account)

	f.session.Disconnect()
	_, ok := v.Power()
	require.False(t, ok)
	snap := v.Snapshot()
	require.False(t, snap.Connected)
	require.Nil(t, snap.Balance)
	require.Nil(t, snap.WalletBalance)
	require.Equal(t, 1, v.core.Poller.Len())

	_, err := v.CurrentPower(context.Background())
	require.ErrorIs(t, err, types.ErrNotConnected)
}

func TestVaultRefetchAllSkipsDisabledQueries(t *testing.T) {
	f := newFixture(t)
	v := f.vault(t)

	eventually(t, func() bool { return v.Snapshot().TotalStaked != nil }, "total read")
	before := f.d.Ledger.CallCount("totalStaked")

	require.NoError(t, v.RefetchAll(context.Background()))
	require.Equal(t, before+1, f.d.Ledger.CallCount("totalStaked"))
	require.Zero(t, f.d.Ledger.CallCount("getBalance"))
}

func TestVaultReadFailureStaysOutOfNotifications(t *testing.T) {
	f := newFixture(t)
	f.d.Ledger.FailCalls(errors.New("connection reset"))
	f.session.Connect(alice)
	v := f.vault(t)

	err := v.RefetchAll(context.Background())
	require.ErrorIs(t, err, types.ErrNetwork)

	// a withdrawal without a readable balance is refused as unfunded
	_, err = v.Withdraw(context.Background(), "1")
	require.ErrorIs(t, err, types.ErrInsufficientFunds)

	time.Sleep(10 * time.Millisecond)
	successes, failures := f.sink.Counts()
	require.Zero(t, successes)
	require.Zero(t, failures)
}

func TestVaultPollingFailureFillsErrorSlot(t *testing.T) {
	f := newFixture(t)
	f.d.Ledger.FailCalls(errors.New("connection reset"))
	f.session.Connect(alice)
	v := f.vault(t)

	// only the first scheduled poll runs; nothing refetches explicitly
	eventually(t, func() bool { return errors.Is(v.Err(), types.ErrNetwork) }, "read error in the slot")
	_, ok := v.Power()
	require.False(t, ok)

	successes, failures := f.sink.Counts()
	require.Zero(t, successes)
	require.Zero(t, failures)
	require.Equal(t, types.PhaseIdle, v.Phase())

	f.d.Ledger.FailCalls(nil)
	v.DismissError()
	require.NoError(t, v.RefetchAll(context.Background()))
	require.NoError(t, v.Err())
	_, ok = v.Power()
	require.True(t, ok)
}
