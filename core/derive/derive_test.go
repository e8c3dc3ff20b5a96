package derive

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/onesafebet/sdk-go/core/types"
	"github.com/stretchr/testify/require"
)

func round(fire, water, wind int64) *types.Round {
	return &types.Round{
		TotalPowerFire:  big.NewInt(fire),
		TotalPowerWater: big.NewInt(water),
		TotalPowerWind:  big.NewInt(wind),
	}
}

func rat(n int64) *big.Rat { return big.NewRat(n, 1) }

func sumAdvantages(adv map[types.Faction]*big.Rat) *big.Rat {
	sum := new(big.Rat)
	for _, v := range adv {
		sum.Add(sum, v)
	}
	return sum
}

func TestRoundSplitAndAdvantages(t *testing.T) {
	split := RoundSplit(round(500, 300, 200))
	require.Zero(t, split.Get(types.FactionFire).Cmp(rat(50)))
	require.Zero(t, split.Get(types.FactionWater).Cmp(rat(30)))
	require.Zero(t, split.Get(types.FactionWind).Cmp(rat(20)))
	require.Equal(t, "50.0", FormatPercent(split.Get(types.FactionFire)))

	adv := Advantages(split)
	require.Zero(t, adv[types.FactionFire].Cmp(rat(-10)), "fire = wind - water")
	require.Zero(t, adv[types.FactionWater].Cmp(rat(30)), "water = fire - wind")
	require.Zero(t, adv[types.FactionWind].Cmp(rat(-20)), "wind = water - fire")
	require.Zero(t, sumAdvantages(adv).Sign())
}

func TestRoundSplitEmptyPools(t *testing.T) {
	for name, r := range map[string]*types.Round{
		"all zero": round(0, 0, 0),
		"no round": nil,
		"nil pools": {},
	} {
		t.Run(name, func(t *testing.T) {
			split := RoundSplit(r)
			for _, f := range types.Factions {
				require.Zero(t, split.Get(f).Sign())
			}
			require.Zero(t, sumAdvantages(Advantages(split)).Sign())
		})
	}
}

func TestAdvantagesSumToZero(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		r := round(rng.Int63n(1e12), rng.Int63n(1e12), rng.Int63n(3))
		require.Zero(t, sumAdvantages(Advantages(RoundSplit(r))).Sign(), "pools %v", r)
	}
}

func TestDominanceTable(t *testing.T) {
	for _, f := range types.Factions {
		require.NotEqual(t, f, Prey(f))
		require.NotEqual(t, Prey(f), Predator(f))
		require.Equal(t, f, Predator(Prey(f)))
	}
	require.Equal(t, types.FactionWind, Prey(types.FactionFire))
	require.Equal(t, types.FactionWater, Predator(types.FactionFire))
	require.Equal(t, types.FactionNone, Prey(types.FactionNone))
	require.Equal(t, types.FactionNone, Predator(types.FactionNone))
}

func TestWholePercent(t *testing.T) {
	split := Split(big.NewInt(1), big.NewInt(2))
	require.Equal(t, int64(33), WholePercent(split[0]))
	require.Equal(t, int64(66), WholePercent(split[1]))
	require.Equal(t, "33.3", FormatPercent(split[0]))
	require.Zero(t, WholePercent(nil))
}

func TestFormatPercentTruncates(t *testing.T) {
	tests := []struct {
		name string
		p    *big.Rat
		want string
	}{
		{name: "two thirds", p: big.NewRat(200, 3), want: "66.6"},
		{name: "just under a tenth", p: big.NewRat(99, 1000), want: "0.0"},
		{name: "just under whole", p: big.NewRat(9999, 100), want: "99.9"},
		{name: "exact", p: big.NewRat(25, 2), want: "12.5"},
		{name: "negative", p: big.NewRat(-200, 3), want: "-66.6"},
		{name: "nil", want: "0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatPercent(tt.p))
		})
	}

	split := Split(big.NewInt(2), big.NewInt(1))
	require.Equal(t, "66.6", FormatPercent(split[0]))
	require.Equal(t, "33.3", FormatPercent(split[1]))
}

func TestCountdown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name   string
		target *big.Int
		want   Countdown
		format string
	}{
		{"days", big.NewInt(now.Unix() + 2*86400 + 3*3600 + 59), Countdown{Remaining: (2*86400 + 3*3600 + 59) * time.Second, Days: 2, Hours: 3, Seconds: 59}, "2d 3h"},
		{"hours", big.NewInt(now.Unix() + 3*3600 + 5*60), Countdown{Remaining: (3*3600 + 5*60) * time.Second, Hours: 3, Minutes: 5}, "3h 5m"},
		{"minutes", big.NewInt(now.Unix() + 5*60 + 30), Countdown{Remaining: 330 * time.Second, Minutes: 5, Seconds: 30}, "5m"},
		{"past", big.NewInt(now.Unix() - 100), Countdown{}, "0m"},
		{"now", big.NewInt(now.Unix()), Countdown{}, "0m"},
		{"no target", nil, Countdown{}, "0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountdownTo(tt.target, now)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.format, got.Format())
		})
	}
	require.True(t, CountdownTo(big.NewInt(now.Unix()-1), now).Expired())
}

func TestIsLocked(t *testing.T) {
	now := time.Unix(1000, 0)
	require.True(t, IsLocked(nil, now))
	require.True(t, IsLocked(big.NewInt(1000), now))
	require.True(t, IsLocked(big.NewInt(999), now))
	require.False(t, IsLocked(big.NewInt(1001), now))
}

func TestClaimEligibility(t *testing.T) {
	tests := []struct {
		name     string
		resolved bool
		claimed  bool
		stake    bool
		want     bool
	}{
		{"resolved with stake", true, false, true, true},
		{"unresolved with stake", false, false, true, false},
		{"already claimed", true, true, true, false},
		{"no stake", true, false, false, false},
		{"unresolved without stake", false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClaimEligible(tt.resolved, tt.claimed, tt.stake))
		})
	}
}

func TestRoundAndMarketClaimEligible(t *testing.T) {
	resolved := &types.Round{IsResolved: true}
	require.True(t, RoundClaimEligible(types.RoundSnapshot{Round: resolved, UserVote: types.FactionFire, VoteKnown: true}))
	require.False(t, RoundClaimEligible(types.RoundSnapshot{Round: resolved, UserVote: types.FactionNone, VoteKnown: true}))
	require.False(t, RoundClaimEligible(types.RoundSnapshot{Round: resolved, UserVote: types.FactionFire}))
	require.False(t, RoundClaimEligible(types.RoundSnapshot{Round: &types.Round{}, UserVote: types.FactionFire, VoteKnown: true}))
	require.False(t, RoundClaimEligible(types.RoundSnapshot{}))

	stake := types.MarketVote{Choice: types.VoteYes, Amount: big.NewInt(5)}
	require.True(t, MarketClaimEligible(types.MarketSnapshot{Market: types.Market{IsResolved: true}, UserVote: stake, VoteKnown: true}))
	require.False(t, MarketClaimEligible(types.MarketSnapshot{Market: types.Market{IsResolved: false}, UserVote: stake, VoteKnown: true}))
	require.False(t, MarketClaimEligible(types.MarketSnapshot{Market: types.Market{IsResolved: true}, VoteKnown: true}))
}

func TestStakeRules(t *testing.T) {
	stake, err := FullBalanceStake(big.NewInt(250))
	require.NoError(t, err)
	require.Equal(t, "250", stake.String())

	_, err = FullBalanceStake(new(big.Int))
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	_, err = FullBalanceStake(nil)
	require.ErrorIs(t, err, types.ErrInsufficientFunds)

	require.NoError(t, CheckStake(big.NewInt(10), big.NewInt(250)))
	require.NoError(t, CheckStake(big.NewInt(250), big.NewInt(250)))
	require.ErrorIs(t, CheckStake(big.NewInt(251), big.NewInt(250)), types.ErrInsufficientFunds)
	require.ErrorIs(t, CheckStake(big.NewInt(1), nil), types.ErrInsufficientFunds)
	require.ErrorIs(t, CheckStake(big.NewInt(0), big.NewInt(250)), types.ErrInvalidAmount)
}

func TestMarketHelpers(t *testing.T) {
	now := time.Unix(5000, 0)
	m := types.Market{YesPool: big.NewInt(300), NoPool: big.NewInt(100), EndTime: big.NewInt(6000), IsActive: true}

	yes, no := MarketOdds(m)
	require.Equal(t, "75.0", FormatPercent(yes))
	require.Equal(t, "25.0", FormatPercent(no))
	require.Equal(t, "133.33", PayoutPercent(m.YesPool, m.NoPool).FloatString(2))
	require.Nil(t, PayoutPercent(new(big.Int), m.NoPool))

	yes, no = MarketOdds(types.Market{})
	require.Zero(t, yes.Sign())
	require.Zero(t, no.Sign())

	require.True(t, MarketOpen(m, now))
	require.False(t, MarketOpen(m, time.Unix(6000, 0)))
	closed := m
	closed.IsActive = false
	require.False(t, MarketOpen(closed, now))
	resolved := m
	resolved.IsResolved = true
	require.False(t, MarketOpen(resolved, now))
}
