package mirror

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contractsapi"
	"github.com/onesafebet/sdk-go/core/derive"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PowerSource supplies the connected account's power balance.
type PowerSource interface {
	CurrentPower(ctx context.Context) (*big.Int, error)
}

type ElementalGameOptions struct {
	Address       common.Address
	RoundInterval time.Duration // 5s
	UserInterval  time.Duration // 3s
	Cascade       []time.Duration
}

var defaultGameCascade = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}

// ElementalGame mirrors the current round, the connected account's vote in it
// and whether that account has claimed, and submits votes and claims.
type ElementalGame struct {
	base
	api   *contractsapi.ElementalGame
	power PowerSource
	opts  ElementalGameOptions

	roundID *ledgersync.Query[*big.Int]

	mu      sync.RWMutex
	current *big.Int
	round   *ledgersync.Query[types.Round]
	vote    *ledgersync.Query[types.Faction]
	claimed *ledgersync.Query[bool]
}

func NewElementalGame(deps Deps, power PowerSource, opts ElementalGameOptions) (*ElementalGame, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if power == nil {
		return nil, errors.New("power source is required")
	}
	api, err := contractsapi.LoadElementalGame(contractsapi.NewElementalGameOptions{
		Transport: deps.Transport,
		Address:   opts.Address,
	})
	if err != nil {
		return nil, err
	}
	opts.RoundInterval = orDefault(opts.RoundInterval, 5*time.Second)
	opts.UserInterval = orDefault(opts.UserInterval, 3*time.Second)
	if len(opts.Cascade) == 0 {
		opts.Cascade = defaultGameCascade
	}

	g := &ElementalGame{api: api, power: power, opts: opts}
	g.init("elemental_game", deps, opts.Cascade, map[string]string{
		"vote":        "Vote confirmed",
		"claimReward": "Reward claimed",
	})
	g.core.SetRefreshTargets(func() []ledgersync.Refresher {
		return append(g.Refreshers(), g.linkedRefreshers()...)
	})

	g.roundID, err = ledgersync.Subscribe(g.core.Poller, ledgersync.QuerySpec[*big.Int]{
		Key:      "currentRoundId",
		Interval: opts.RoundInterval,
		Fetch:    g.api.CurrentRoundID,
		OnUpdate: g.onRoundID,
	})
	if err != nil {
		g.close()
		return nil, err
	}
	g.watchSession(g.rebind)
	return g, nil
}

func (g *ElementalGame) onRoundID(id *big.Int) {
	g.mu.Lock()
	changed := g.current == nil || g.current.Cmp(id) != 0
	if changed {
		g.current = util.CloneBig(id)
	}
	g.mu.Unlock()
	if changed {
		g.logger.Debug("current round changed", zap.Stringer("round", id))
		g.rebind()
	}
}

// rebind re-creates the round-keyed and account-keyed queries when the round
// or the connected account changes. Round id zero means no round exists yet.
func (g *ElementalGame) rebind() {
	acct, connected := g.account()

	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.current
	hasRound := id != nil && id.Sign() > 0
	roundKey := ""
	if hasRound {
		roundKey = "round:" + id.String()
	}
	if g.round == nil || g.round.Key() != roundKey {
		closeQuery(g.round)
		g.round = nil
		if hasRound {
			g.round = subscribeOrLog(g, ledgersync.QuerySpec[types.Round]{
				Key:      roundKey,
				Endpoint: "getRoundInfo",
				Interval: g.opts.RoundInterval,
				Fetch: func(ctx context.Context) (types.Round, error) {
					return g.api.GetRoundInfo(ctx, id)
				},
			})
		}
	}

	voteKey := ""
	if hasRound && connected {
		voteKey = "vote:" + id.String() + ":" + acct.Hex()
	}
	if g.vote != nil && g.vote.Key() == voteKey {
		return
	}
	closeQuery(g.vote)
	closeQuery(g.claimed)
	g.vote, g.claimed = nil, nil
	if voteKey == "" {
		return
	}

	enabled := g.boundTo(acct)
	g.vote = subscribeOrLog(g, ledgersync.QuerySpec[types.Faction]{
		Key:      voteKey,
		Endpoint: "getUserVote",
		Interval: g.opts.UserInterval,
		Enabled:  enabled,
		Fetch: func(ctx context.Context) (types.Faction, error) {
			return g.api.GetUserVote(ctx, id, acct)
		},
	})
	g.claimed = subscribeOrLog(g, ledgersync.QuerySpec[bool]{
		Key:      "claimed:" + id.String() + ":" + acct.Hex(),
		Endpoint: "hasClaimed",
		Interval: g.opts.UserInterval,
		Enabled:  enabled,
		Fetch: func(ctx context.Context) (bool, error) {
			return g.api.HasClaimed(ctx, id, acct)
		},
	})
}

func subscribeOrLog[T any](g *ElementalGame, spec ledgersync.QuerySpec[T]) *ledgersync.Query[T] {
	q, err := ledgersync.Subscribe(g.core.Poller, spec)
	if err != nil {
		g.logger.Warn("subscribe query", zap.String("query", spec.Key), zap.Error(err))
		return nil
	}
	return q
}

type gameQueries struct {
	round   *ledgersync.Query[types.Round]
	vote    *ledgersync.Query[types.Faction]
	claimed *ledgersync.Query[bool]
	id      *big.Int
}

func (g *ElementalGame) queries() gameQueries {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return gameQueries{round: g.round, vote: g.vote, claimed: g.claimed, id: g.current}
}

// Snapshot returns the current round as mirrored.
func (g *ElementalGame) Snapshot() types.RoundSnapshot {
	q := g.queries()
	s := types.RoundSnapshot{RoundID: util.CloneBig(q.id)}
	if r, ok := valueOf(q.round); ok {
		s.Round = &r
	}
	if v, ok := valueOf(q.vote); ok {
		s.UserVote, s.VoteKnown = v, true
	}
	if c, ok := valueOf(q.claimed); ok {
		s.HasClaimed = c
	}
	return s
}

// Percentages returns the faction shares of the current round.
func (g *ElementalGame) Percentages() derive.FactionSplit {
	return derive.RoundSplit(g.Snapshot().Round)
}

// Advantages returns each faction's share minus its predator's share.
func (g *ElementalGame) Advantages() map[types.Faction]*big.Rat {
	return derive.Advantages(g.Percentages())
}

// TimeUntilLock returns the countdown to the current round's lock time.
func (g *ElementalGame) TimeUntilLock() derive.Countdown {
	r := g.Snapshot().Round
	if r == nil {
		return derive.Countdown{}
	}
	return derive.CountdownTo(r.LockTime, g.now())
}

// TimeUntilEnd returns the countdown to the current round's end time.
func (g *ElementalGame) TimeUntilEnd() derive.Countdown {
	r := g.Snapshot().Round
	if r == nil {
		return derive.Countdown{}
	}
	return derive.CountdownTo(r.EndTime, g.now())
}

// IsLocked is true when no round is mirrored or its lock time has passed.
func (g *ElementalGame) IsLocked() bool {
	r := g.Snapshot().Round
	if r == nil {
		return true
	}
	return derive.IsLocked(r.LockTime, g.now())
}

func (g *ElementalGame) CanClaim() bool {
	return derive.RoundClaimEligible(g.Snapshot())
}

// currentRound returns the current round, reading the round id and the round
// now when the polls have not delivered them yet. A nil round means none has
// started.
func (g *ElementalGame) currentRound(ctx context.Context) (*types.Round, error) {
	if g.queries().round == nil {
		id, err := freshOrFetch(ctx, g.roundID)
		if err != nil {
			return nil, err
		}
		if id == nil || id.Sign() <= 0 {
			return nil, nil
		}
		// the poll stores the id before its update callback rebinds
		g.onRoundID(id)
		g.rebind()
	}
	r, err := freshOrFetch(ctx, g.queries().round)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Vote commits the connected account's entire power balance to faction.
func (g *ElementalGame) Vote(ctx context.Context, faction types.Faction) (*ledgersync.Handle, error) {
	if _, ok := g.account(); !ok {
		return nil, g.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	if !faction.Valid() {
		return nil, g.core.Fail(errors.Wrapf(types.ErrInvalidFaction, "%s", faction))
	}

	round, err := g.currentRound(ctx)
	if err != nil {
		return nil, g.core.Fail(err)
	}
	var lockTime *big.Int
	if round != nil {
		lockTime = round.LockTime
	}
	if derive.IsLocked(lockTime, g.now()) {
		return nil, g.core.Fail(errors.WithStack(types.ErrVotingLocked))
	}

	balance, err := g.power.CurrentPower(ctx)
	if err != nil {
		g.logger.Warn("power balance unavailable", zap.Error(err))
		balance = nil
	}
	stake, err := derive.FullBalanceStake(balance)
	if err != nil {
		return nil, g.core.Fail(err)
	}

	vote := g.queries().vote
	return g.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "vote",
		Args: []any{faction, stake},
		Send: func(ctx context.Context) (common.Hash, error) {
			return g.api.Vote(ctx, faction)
		},
		Expect: func() bool {
			v, ok := valueOf(vote)
			return ok && v == faction
		},
	})
}

// ClaimReward claims the current round's payout when it is resolved, the
// account voted and has not claimed yet.
func (g *ElementalGame) ClaimReward(ctx context.Context) (*ledgersync.Handle, error) {
	if _, ok := g.account(); !ok {
		return nil, g.core.Fail(errors.WithStack(types.ErrNotConnected))
	}
	s := g.Snapshot()
	if !derive.RoundClaimEligible(s) {
		return nil, g.core.Fail(errors.WithStack(types.ErrClaimUnavailable))
	}

	id := s.RoundID
	claimed := g.queries().claimed
	return g.core.Submit(ctx, ledgersync.WriteRequest{
		Name: "claimReward",
		Args: []any{id},
		Send: func(ctx context.Context) (common.Hash, error) {
			return g.api.ClaimReward(ctx, id)
		},
		Expect: func() bool {
			c, ok := valueOf(claimed)
			return ok && c
		},
	})
}

// Refreshers returns the game's live queries.
func (g *ElementalGame) Refreshers() []ledgersync.Refresher {
	q := g.queries()
	out := appendQuery(nil, g.roundID)
	out = appendQuery(out, q.round)
	out = appendQuery(out, q.vote)
	return appendQuery(out, q.claimed)
}

// RefetchAll reads every enabled query now.
func (g *ElementalGame) RefetchAll(ctx context.Context) error {
	return refetchAll(ctx, g.Refreshers())
}

func (g *ElementalGame) Close() { g.close() }
