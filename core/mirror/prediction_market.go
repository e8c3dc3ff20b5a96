package mirror

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/onesafebet/sdk-go/core/contractsapi"
	"github.com/onesafebet/sdk-go/core/derive"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type PredictionMarketOptions struct {
	Address        common.Address
	MarketInterval time.Duration // 5s
	UserInterval   time.Duration // 3s
	// MaxWatched bounds how many of the newest markets are mirrored. Defaults to 50.
	MaxWatched int
	Cascade    []time.Duration
}

var defaultMarketCascade = []time.Duration{0, 2 * time.Second, 4 * time.Second}

type watchedMarket struct {
	market *ledgersync.Query[types.Market]
	vote   *ledgersync.Query[types.MarketVote]
}

// PredictionMarket mirrors the newest markets and the connected account's
// stake in each, and submits market creation, votes and claims.
type PredictionMarket struct {
	base
	api      *contractsapi.PredictionMarket
	power    PowerSource
	opts     PredictionMarketOptions
	validate *validator.Validate

	total *ledgersync.Query[*big.Int]

	mu      sync.RWMutex
	count   uint64
	bound   common.Address
	watched map[uint64]*watchedMarket
}

func NewPredictionMarket(deps Deps, power PowerSource, opts PredictionMarketOptions) (*PredictionMarket, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if power == nil {
		return nil, errors.New("power source is required")
	}
	api, err := contractsapi.LoadPredictionMarket(contractsapi.NewPredictionMarketOptions{
		Transport: deps.Transport,
		Address:   opts.Address,
	})
	if err != nil {
		return nil, err
	}
	opts.MarketInterval = orDefault(opts.MarketInterval, 5*time.Second)
	opts.UserInterval = orDefault(opts.UserInterval, 3*time.Second)
	if opts.MaxWatched <= 0 {
		opts.MaxWatched = 50
	}
	if len(opts.Cascade) == 0 {
		opts.Cascade = defaultMarketCascade
	}

	p := &PredictionMarket{
		api:      api,
		power:    power,
		opts:     opts,
		validate: validator.New(),
		watched:  make(map[uint64]*watchedMarket),
	}
	p.init("prediction_market", deps, opts.Cascade, map[string]string{
		"createMarket": "Market created",
		"vote":         "Stake placed",
		"claimReward":  "Winnings claimed",
	})
	p.core.SetRefreshTargets(func() []ledgersync.Refresher {
		return append(p.Refreshers(), p.linkedRefreshers()...)
	})

	p.total, err = ledgersync.Subscribe(p.core.Poller, ledgersync.QuerySpec[*big.Int]{
		Key:      "totalMarkets",
		Endpoint: "getTotalMarkets",
		Interval: opts.MarketInterval,
		Fetch:    p.api.GetTotalMarkets,
		OnUpdate: p.onTotal,
	})
	if err != nil {
		p.close()
		return nil, err
	}
	p.watchSession(p.rebind)
	return p, nil
}

func (p *PredictionMarket) onTotal(total *big.Int) {
	if !total.IsUint64() {
		p.logger.Warn("market count out of range", zap.Stringer("total", total))
		return
	}
	p.mu.Lock()
	changed := p.count != total.Uint64()
	p.count = total.Uint64()
	p.mu.Unlock()
	if changed {
		p.rebind()
	}
}

// window returns the ids of the newest MaxWatched markets. Ids run from 1.
func (p *PredictionMarket) window(count uint64) (lo, hi uint64) {
	if count == 0 {
		return 1, 0
	}
	lo = 1
	if limit := uint64(p.opts.MaxWatched); count > limit {
		lo = count - limit + 1
	}
	return lo, count
}

// rebind aligns the watched set with the market count and the connected account.
func (p *PredictionMarket) rebind() {
	acct, connected := p.account()

	p.mu.Lock()
	defer p.mu.Unlock()

	accountChanged := !connected || acct != p.bound
	lo, hi := p.window(p.count)
	for id, w := range p.watched {
		if id < lo || id > hi {
			closeQuery(w.market)
			closeQuery(w.vote)
			delete(p.watched, id)
			continue
		}
		if accountChanged {
			closeQuery(w.vote)
			w.vote = nil
		}
	}
	if connected {
		p.bound = acct
	} else {
		p.bound = common.Address{}
	}

	for id := lo; id <= hi && hi > 0; id++ {
		w, ok := p.watched[id]
		if !ok {
			w = &watchedMarket{}
			p.watched[id] = w
		}
		marketID := new(big.Int).SetUint64(id)
		if w.market == nil {
			w.market = p.subscribeMarket(marketID)
		}
		if w.vote == nil && connected {
			w.vote = p.subscribeVote(marketID, acct)
		}
	}
}

func (p *PredictionMarket) subscribeMarket(id *big.Int) *ledgersync.Query[types.Market] {
	q, err := ledgersync.Subscribe(p.core.Poller, ledgersync.QuerySpec[types.Market]{
		Key:      "market:" + id.String(),
		Endpoint: "getMarket",
		Interval: p.opts.MarketInterval,
		Fetch: func(ctx context.Context) (types.Market, error) {
			return p.api.GetMarket(ctx, id)
		},
	})
	if err != nil {
		p.logger.Warn("subscribe market", zap.Stringer("market", id), zap.Error(err))
		return nil
	}
	return q
}

func (p *PredictionMarket) subscribeVote(id *big.Int, acct common.Address) *ledgersync.Query[types.MarketVote] {
	q, err := ledgersync.Subscribe(p.core.Poller, ledgersync.QuerySpec[types.MarketVote]{
		Key:      "marketVote:" + id.String() + ":" + acct.Hex(),
		Endpoint: "getUserVote",
		Interval: p.opts.UserInterval,
		Enabled:  p.boundTo(acct),
		Fetch: func(ctx context.Context) (types.MarketVote, error) {
			return p.api.GetUserVote(ctx, id, acct)
		},
	})
	if err != nil {
		p.logger.Warn("subscribe market vote", zap.Stringer("market", id), zap.Error(err))
		return nil
	}
	return q
}

func (p *PredictionMarket) lookup(id uint64) (watchedMarket, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.watched[id]
	if !ok {
		return watchedMarket{}, false
	}
	return *w, true
}

func snapshotOf(w watchedMarket) (types.MarketSnapshot, bool) {
	m, ok := valueOf(w.market)
	if !ok {
		return types.MarketSnapshot{}, false
	}
	s := types.MarketSnapshot{Market: m}
	if v, ok := valueOf(w.vote); ok {
		s.UserVote, s.VoteKnown = v, true
	}
	return s, true
}

// Market returns the mirrored state of one market, false if it is not loaded.
func (p *PredictionMarket) Market(id uint64) (types.MarketSnapshot, bool) {
	w, ok := p.lookup(id)
	if !ok {
		return types.MarketSnapshot{}, false
	}
	return snapshotOf(w)
}

// Markets returns every loaded market, newest first.
func (p *PredictionMarket) Markets() []types.MarketSnapshot {
	p.mu.RLock()
	ids := make([]uint64, 0, len(p.watched))
	ws := make(map[uint64]watchedMarket, len(p.watched))
	for id, w := range p.watched {
		ids = append(ids, id)
		ws[id] = *w
	}
	p.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	out := make([]types.MarketSnapshot, 0, len(ids))
	for _, id := range ids {
		if s, ok := snapshotOf(ws[id]); ok {
			out = append(out, s)
		}
	}
	return out
}

// Total returns the mirrored market count.
func (p *PredictionMarket) Total() (uint64, bool) {
	t, ok := valueOf(p.total)
	if !ok || !t.IsUint64() {
		return 0, false
	}
	return t.Uint64(), true
}

// currentMarket returns one watched market and the account's stake in it,
// reading the market count, the market and the stake now when the polls have
// not delivered them yet.
func (p *PredictionMarket) currentMarket(ctx context.Context, id uint64) (types.MarketSnapshot, error) {
	if _, ok := p.lookup(id); !ok {
		total, err := freshOrFetch(ctx, p.total)
		if err != nil {
			return types.MarketSnapshot{}, err
		}
		// the poll stores the count before its update callback rebinds
		p.onTotal(total)
		p.rebind()
	}
	w, ok := p.lookup(id)
	if !ok {
		return types.MarketSnapshot{}, errors.Wrapf(types.ErrMarketNotWatched, "market %d", id)
	}
	m, err := freshOrFetch(ctx, w.market)
	if err != nil {
		return types.MarketSnapshot{}, err
	}
	s := types.MarketSnapshot{Market: m}
	if w.vote != nil {
		v, err := freshOrFetch(ctx, w.vote)
		switch {
		case err == nil:
			s.UserVote, s.VoteKnown = v, true
		case !errors.Is(err, ledgersync.ErrQueryDisabled):
			return types.MarketSnapshot{}, err
		}
	}
	return s, nil
}

// CreateMarket opens a new market. MinStake is a decimal at storage scale.
func (p *PredictionMarket) CreateMarket(ctx context.Context, in types.CreateMarketInput) (*ledgersync.Handle, error) {
	if _, ok := p.account(); !ok {
		return nil, p.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	if err := p.validate.Struct(in); err != nil {
		return nil, p.core.Fail(errors.Wrap(err, "invalid market"))
	}
	if err := in.Validate(); err != nil {
		return nil, p.core.Fail(errors.Wrap(err, "invalid market"))
	}
	minStake, err := util.ToMinorUnits(in.MinStake, util.StorageScale)
	if err != nil {
		return nil, p.core.Fail(err)
	}
	args := types.CreateMarketArgs{
		Question: in.Question,
		Category: in.Category,
		Duration: big.NewInt(int64(in.Duration() / time.Second)),
		MinStake: minStake,
	}

	prev, _ := p.Total()
	return p.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "createMarket",
		Args: []any{args.Question, args.Category, args.Duration, args.MinStake},
		Send: func(ctx context.Context) (common.Hash, error) {
			return p.api.CreateMarket(ctx, args)
		},
		Expect: func() bool {
			now, ok := p.Total()
			return ok && now > prev
		},
	})
}

// Vote stakes part or all of the power balance on one side of an open market.
// Amount is a decimal at storage scale, the scale of the power balance and of
// the market's minimum stake it is checked against.
func (p *PredictionMarket) Vote(ctx context.Context, in types.VoteMarketInput) (*ledgersync.Handle, error) {
	if _, ok := p.account(); !ok {
		return nil, p.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	if err := p.validate.Struct(in); err != nil {
		return nil, p.core.Fail(errors.Wrap(err, "invalid vote"))
	}
	s, err := p.currentMarket(ctx, in.MarketID)
	if err != nil {
		return nil, p.core.Fail(err)
	}
	if !derive.MarketOpen(s.Market, p.now()) {
		return nil, p.core.Fail(errors.Wrapf(types.ErrMarketClosed, "market %d", in.MarketID))
	}
	amount, err := util.PositiveMinorUnits(in.Amount, util.StorageScale)
	if err != nil {
		return nil, p.core.Fail(err)
	}
	if s.Market.MinStake != nil && amount.Cmp(s.Market.MinStake) < 0 {
		return nil, p.core.Fail(errors.Wrapf(types.ErrInvalidAmount, "stake %s is below the minimum %s",
			in.Amount, util.ToDecimalString(s.Market.MinStake, util.StorageScale)))
	}
	balance, err := p.power.CurrentPower(ctx)
	if err != nil {
		p.logger.Warn("power balance unavailable", zap.Error(err))
		balance = nil
	}
	if err := derive.CheckStake(amount, balance); err != nil {
		return nil, p.core.Fail(err)
	}

	args := types.VoteMarketArgs{
		MarketID: new(big.Int).SetUint64(in.MarketID),
		Choice:   in.Yes,
		Amount:   amount,
	}
	want := types.VoteNo
	if in.Yes {
		want = types.VoteYes
	}
	w, _ := p.lookup(in.MarketID)
	return p.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "vote",
		Args: []any{args.MarketID, args.Choice, args.Amount},
		Send: func(ctx context.Context) (common.Hash, error) {
			return p.api.Vote(ctx, args)
		},
		Expect: func() bool {
			v, ok := valueOf(w.vote)
			return ok && v.HasStake() && v.Choice == want
		},
	})
}

// ClaimReward claims the winnings of a resolved market the account staked in.
func (p *PredictionMarket) ClaimReward(ctx context.Context, marketID uint64) (*ledgersync.Handle, error) {
	if _, ok := p.account(); !ok {
		return nil, p.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	s, err := p.currentMarket(ctx, marketID)
	if err != nil {
		return nil, p.core.Fail(err)
	}
	if !derive.MarketClaimEligible(s) {
		return nil, p.core.Fail(errors.Wrapf(types.ErrClaimUnavailable, "market %d", marketID))
	}

	id := new(big.Int).SetUint64(marketID)
	return p.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "claimReward",
		Args: []any{id},
		Send: func(ctx context.Context) (common.Hash, error) {
			return p.api.ClaimReward(ctx, id)
		},
	})
}

// PotentialWin quotes the payout of staking amount, a decimal at storage
// scale, on one side. It reads the ledger directly.
func (p *PredictionMarket) PotentialWin(ctx context.Context, marketID uint64, yes bool, amount string) (*big.Int, error) {
	units, err := util.PositiveMinorUnits(amount, util.StorageScale)
	if err != nil {
		return nil, err
	}
	return p.api.CalculatePotentialWin(ctx, new(big.Int).SetUint64(marketID), yes, units)
}

// Refreshers returns the market's live queries.
func (p *PredictionMarket) Refreshers() []ledgersync.Refresher {
	out := appendQuery(nil, p.total)
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.watched {
		out = appendQuery(out, w.market)
		out = appendQuery(out, w.vote)
	}
	return out
}

// RefetchAll reads every enabled query now.
func (p *PredictionMarket) RefetchAll(ctx context.Context) error {
	return refetchAll(ctx, p.Refreshers())
}

func (p *PredictionMarket) Close() { p.close() }

