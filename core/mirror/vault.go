package mirror

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contractsapi"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// VaultOptions configures the vault mirror. Zero values take the defaults.
type VaultOptions struct {
	Address         common.Address
	BalanceInterval time.Duration // 3s
	TotalInterval   time.Duration // 5s
	WalletInterval  time.Duration // 5s
	Cascade         []time.Duration
}

var defaultVaultCascade = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Vault mirrors the connected account's power balance, the vault total and
// the native wallet balance, and submits deposits and withdrawals.
type Vault struct {
	base
	api       *contractsapi.Vault
	transport types.Transport
	opts      VaultOptions

	mu      sync.RWMutex
	bound   common.Address
	balance *ledgersync.Query[*big.Int]
	wallet  *ledgersync.Query[*big.Int]
	total   *ledgersync.Query[*big.Int]
}

func NewVault(deps Deps, opts VaultOptions) (*Vault, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	api, err := contractsapi.LoadVault(contractsapi.NewVaultOptions{
		Transport: deps.Transport,
		Address:   opts.Address,
	})
	if err != nil {
		return nil, err
	}
	opts.BalanceInterval = orDefault(opts.BalanceInterval, 3*time.Second)
	opts.TotalInterval = orDefault(opts.TotalInterval, 5*time.Second)
	opts.WalletInterval = orDefault(opts.WalletInterval, 5*time.Second)
	if len(opts.Cascade) == 0 {
		opts.Cascade = defaultVaultCascade
	}

	v := &Vault{api: api, transport: deps.Transport, opts: opts}
	v.init("vault", deps, opts.Cascade, map[string]string{
		"deposit":  "Deposit confirmed",
		"withdraw": "Withdrawal confirmed",
	})
	v.core.SetRefreshTargets(func() []ledgersync.Refresher {
		return append(v.Refreshers(), v.linkedRefreshers()...)
	})

	v.total, err = ledgersync.Subscribe(v.core.Poller, ledgersync.QuerySpec[*big.Int]{
		Key:      "totalStaked",
		Interval: opts.TotalInterval,
		Fetch:    v.api.TotalStaked,
	})
	if err != nil {
		v.close()
		return nil, err
	}
	v.watchSession(v.rebind)
	return v, nil
}

// rebind re-creates the account-keyed queries when the connected account changes.
func (v *Vault) rebind() {
	acct, connected := v.account()

	v.mu.Lock()
	defer v.mu.Unlock()
	if connected && acct == v.bound && v.balance != nil {
		return
	}
	closeQuery(v.balance)
	closeQuery(v.wallet)
	v.balance, v.wallet, v.bound = nil, nil, common.Address{}
	if !connected {
		return
	}

	v.bound = acct
	enabled := v.boundTo(acct)
	var err error
	v.balance, err = ledgersync.Subscribe(v.core.Poller, ledgersync.QuerySpec[*big.Int]{
		Key:      "balance:" + acct.Hex(),
		Endpoint: "getBalance",
		Interval: v.opts.BalanceInterval,
		Enabled:  enabled,
		Fetch: func(ctx context.Context) (*big.Int, error) {
			return v.api.GetBalance(ctx, acct)
		},
	})
	if err != nil {
		v.logger.Warn("subscribe balance", zap.Error(err))
	}
	v.wallet, err = ledgersync.Subscribe(v.core.Poller, ledgersync.QuerySpec[*big.Int]{
		Key:      "wallet:" + acct.Hex(),
		Endpoint: "balanceAt",
		Interval: v.opts.WalletInterval,
		Enabled:  enabled,
		Fetch: func(ctx context.Context) (*big.Int, error) {
			return v.transport.BalanceAt(ctx, acct)
		},
	})
	if err != nil {
		v.logger.Warn("subscribe wallet", zap.Error(err))
	}
}

func (v *Vault) queries() (balance, wallet, total *ledgersync.Query[*big.Int]) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance, v.wallet, v.total
}

// Snapshot returns the current mirror. Unread or stale values are nil.
func (v *Vault) Snapshot() types.VaultSnapshot {
	balance, wallet, total := v.queries()
	acct, connected := v.account()
	s := types.VaultSnapshot{Account: acct, Connected: connected}
	if b, ok := valueOf(balance); ok {
		s.Balance = util.CloneBig(b)
	}
	if w, ok := valueOf(wallet); ok {
		s.WalletBalance = util.CloneBig(w)
	}
	if t, ok := valueOf(total); ok {
		s.TotalStaked = util.CloneBig(t)
	}
	return s
}

// Power returns the fresh power balance at storage scale.
func (v *Vault) Power() (*big.Int, bool) {
	balance, _, _ := v.queries()
	b, ok := valueOf(balance)
	if !ok {
		return nil, false
	}
	return util.CloneBig(b), true
}

// CurrentPower returns the power balance, reading it when the mirror is stale.
func (v *Vault) CurrentPower(ctx context.Context) (*big.Int, error) {
	if _, ok := v.account(); !ok {
		return nil, errors.WithStack(types.ErrNotConnected)
	}
	balance, _, _ := v.queries()
	b, err := freshOrFetch(ctx, balance)
	if err != nil {
		return nil, err
	}
	return util.CloneBig(b), nil
}

// Deposit moves amount, a decimal at value scale, from the wallet into the vault.
func (v *Vault) Deposit(ctx context.Context, amount string) (*ledgersync.Handle, error) {
	if _, ok := v.account(); !ok {
		return nil, v.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	value, err := util.PositiveMinorUnits(amount, util.ValueScale)
	if err != nil {
		return nil, v.core.Fail(err)
	}
	// the vault credits power at storage scale and drops the remainder
	if util.Rescale(value, util.ValueScale, util.StorageScale).Sign() == 0 {
		return nil, v.core.Fail(errors.Wrapf(types.ErrInvalidAmount,
			"deposit of %s is below the smallest vault unit %s", amount, util.ToDecimalString(big.NewInt(1), util.StorageScale)))
	}

	balance, wallet, _ := v.queries()
	funds, err := freshOrFetch(ctx, wallet)
	if err != nil {
		v.logger.Warn("wallet balance unavailable", zap.Error(err))
		funds = nil
	}
	if funds == nil || funds.Cmp(value) < 0 {
		return nil, v.core.Fail(errors.Wrapf(types.ErrInsufficientFunds,
			"deposit of %s exceeds wallet balance %s", amount, util.FormatAmount(funds, util.ValueScale, "unknown")))
	}

	prev, _ := valueOf(balance)
	return v.core.Submit(ctx, ledgersync.WriteRequest{
		Name:  "deposit",
		Value: value,
		Send: func(ctx context.Context) (common.Hash, error) {
			return v.api.Deposit(ctx, value)
		},
		Expect: v.balanceMoved(prev, 1),
	})
}

// Withdraw returns amount, a decimal at storage scale, from the vault to the
// wallet. A balance that cannot be read counts as zero.
func (v *Vault) Withdraw(ctx context.Context, amount string) (*ledgersync.Handle, error) {
	if _, ok := v.account(); !ok {
		return nil, v.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	units, err := util.PositiveMinorUnits(amount, util.StorageScale)
	if err != nil {
		return nil, v.core.Fail(err)
	}

	balance, _, _ := v.queries()
	current, err := freshOrFetch(ctx, balance)
	if err != nil {
		v.logger.Warn("vault balance unavailable", zap.Error(err))
		current = nil
	}
	if current == nil || current.Cmp(units) < 0 {
		return nil, v.core.Fail(errors.Wrapf(types.ErrInsufficientFunds,
			"withdrawal of %s exceeds vault balance %s", amount, util.FormatAmount(current, util.StorageScale, "0")))
	}

	return v.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "withdraw",
		Args: []any{units},
		Send: func(ctx context.Context) (common.Hash, error) {
			return v.api.Withdraw(ctx, units)
		},
		Expect: v.balanceMoved(current, -1),
	})
}

// balanceMoved reports whether the mirrored balance compares to prev with the
// given sign. An unread prev counts as zero.
func (v *Vault) balanceMoved(prev *big.Int, sign int) func() bool {
	if prev == nil {
		prev = new(big.Int)
	}
	prev = util.CloneBig(prev)
	return func() bool {
		now, ok := v.Power()
		return ok && now.Cmp(prev) == sign
	}
}

// Refreshers returns the vault's live queries.
func (v *Vault) Refreshers() []ledgersync.Refresher {
	balance, wallet, total := v.queries()
	out := appendQuery(nil, balance)
	out = appendQuery(out, wallet)
	return appendQuery(out, total)
}

// RefetchAll reads every enabled query now.
func (v *Vault) RefetchAll(ctx context.Context) error {
	return refetchAll(ctx, v.Refreshers())
}

func (v *Vault) Close() { v.close() }

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
