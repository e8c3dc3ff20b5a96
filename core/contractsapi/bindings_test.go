package contractsapi

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/internal/ledgertest"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func waitOK(t *testing.T, l *ledgertest.Ledger, hash common.Hash) *types.Receipt {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := l.WaitTx(ctx, hash, time.Millisecond)
	require.NoError(t, err)
	return r
}

func TestLoadRequiresTransportAndAddress(t *testing.T) {
	d := ledgertest.NewDeployment(alice)

	_, err := LoadVault(NewVaultOptions{Address: ledgertest.VaultAddress})
	require.Error(t, err)
	_, err = LoadElementalGame(NewElementalGameOptions{Transport: d.Ledger})
	require.Error(t, err)
	_, err = LoadPredictionMarket(NewPredictionMarketOptions{Transport: d.Ledger})
	require.Error(t, err)
	_, err = LoadQuestManager(NewQuestManagerOptions{})
	require.Error(t, err)
}

func TestVaultBinding(t *testing.T) {
	ctx := context.Background()
	d := ledgertest.NewDeployment(alice)
	d.Ledger.SetWallet(alice, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil))

	v, err := LoadVault(NewVaultOptions{Transport: d.Ledger, Address: ledgertest.VaultAddress})
	require.NoError(t, err)
	require.Equal(t, ledgertest.VaultAddress, v.Address())

	bal, err := v.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	// 100 units: 1e20 at value scale, credited as 1e10 at storage scale
	value, _ := new(big.Int).SetString("100000000000000000000", 10)
	hash, err := v.Deposit(ctx, value)
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	bal, err = v.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "10000000000", bal.String())

	total, err := v.TotalStaked(ctx)
	require.NoError(t, err)
	require.Equal(t, "10000000000", total.String())

	hash, err = v.Withdraw(ctx, big.NewInt(1))
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())
	require.Equal(t, "9999999999", d.Balance(alice).String())

	hash, err = v.Withdraw(ctx, big.NewInt(1e11))
	require.NoError(t, err)
	r := waitOK(t, d.Ledger, hash)
	require.False(t, r.Succeeded())
	require.Equal(t, "Insufficient balance", r.RevertReason)

	_, err = v.Deposit(ctx, big.NewInt(0))
	require.ErrorIs(t, err, types.ErrInvalidAmount)
	_, err = v.Withdraw(ctx, nil)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	sent := d.Ledger.Sent()
	require.Len(t, sent, 3)
	require.Equal(t, "deposit", sent[0].Method)
	require.Equal(t, value.String(), sent[0].Value.String())
	require.Equal(t, "withdraw", sent[1].Method)
}

func TestElementalGameBinding(t *testing.T) {
	ctx := context.Background()
	d := ledgertest.NewDeployment(alice)
	d.SetBalance(alice, big.NewInt(250))
	now := time.Now()
	d.StartRound(3, now.Add(time.Hour), now.Add(2*time.Hour))
	d.SetPools(3, 500, 300, 200)

	g, err := LoadElementalGame(NewElementalGameOptions{Transport: d.Ledger, Address: ledgertest.GameAddress})
	require.NoError(t, err)

	id, err := g.CurrentRoundID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), id.Int64())

	round, err := g.GetRoundInfo(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(3), round.ID.Int64())
	require.Equal(t, "500", round.TotalPowerFire.String())
	require.Equal(t, "300", round.TotalPowerWater.String())
	require.Equal(t, "200", round.TotalPowerWind.String())
	require.Equal(t, now.Add(time.Hour).Unix(), round.LockTime.Int64())
	require.False(t, round.IsResolved)

	hash, err := g.Vote(ctx, types.FactionWater)
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	vote, err := g.GetUserVote(ctx, id, alice)
	require.NoError(t, err)
	require.Equal(t, types.FactionWater, vote)

	round, err = g.GetRoundInfo(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "550", round.TotalPowerWater.String())

	_, err = g.Vote(ctx, types.FactionNone)
	require.ErrorIs(t, err, types.ErrInvalidFaction)

	d.ResolveRound(3, types.FactionWater)
	hash, err = g.ClaimReward(ctx, id)
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	claimed, err := g.HasClaimed(ctx, id, alice)
	require.NoError(t, err)
	require.True(t, claimed)

	round, err = g.GetRoundInfo(ctx, id)
	require.NoError(t, err)
	require.True(t, round.IsResolved)
	require.Equal(t, types.FactionWater, round.WinningFaction)
}

func TestPredictionMarketBinding(t *testing.T) {
	ctx := context.Background()
	d := ledgertest.NewDeployment(alice)
	d.SetBalance(alice, big.NewInt(1000))

	p, err := LoadPredictionMarket(NewPredictionMarketOptions{Transport: d.Ledger, Address: ledgertest.MarketAddress})
	require.NoError(t, err)

	hash, err := p.CreateMarket(ctx, types.CreateMarketArgs{
		Question: "Will HBAR close above $1?",
		Category: "Crypto",
		Duration: big.NewInt(86400),
		MinStake: big.NewInt(10),
	})
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	total, err := p.GetTotalMarkets(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total.Int64())

	m, err := p.GetMarket(ctx, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "Will HBAR close above $1?", m.Question)
	require.Equal(t, "Crypto", m.Category)
	require.Equal(t, "10", m.MinStake.String())
	require.True(t, m.IsActive)
	require.Equal(t, int64(86400), new(big.Int).Sub(m.EndTime, m.CreatedAt).Int64())

	hash, err = p.Vote(ctx, types.VoteMarketArgs{MarketID: big.NewInt(1), Choice: true, Amount: big.NewInt(40)})
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	vote, err := p.GetUserVote(ctx, big.NewInt(1), alice)
	require.NoError(t, err)
	require.Equal(t, types.VoteYes, vote.Choice)
	require.Equal(t, "40", vote.Amount.String())

	win, err := p.CalculatePotentialWin(ctx, big.NewInt(1), false, big.NewInt(60))
	require.NoError(t, err)
	require.Equal(t, "100", win.String())

	_, err = p.GetMarket(ctx, big.NewInt(0))
	require.Error(t, err)
	_, err = p.GetMarket(ctx, big.NewInt(2))
	require.ErrorIs(t, err, types.ErrNetwork)
	_, err = p.Vote(ctx, types.VoteMarketArgs{MarketID: big.NewInt(1), Amount: big.NewInt(0)})
	require.ErrorIs(t, err, types.ErrInvalidAmount)
	_, err = p.CreateMarket(ctx, types.CreateMarketArgs{Question: "q", Category: "c"})
	require.Error(t, err)

	d.ResolveMarket(1, true)
	hash, err = p.ClaimReward(ctx, big.NewInt(1))
	require.NoError(t, err)
	require.True(t, waitOK(t, d.Ledger, hash).Succeeded())

	args := d.Ledger.Sent()[0].Args
	require.Len(t, args, 4)
	require.Equal(t, "Will HBAR close above $1?", args[0])
	require.Equal(t, "Crypto", args[1])
	require.Equal(t, "86400", args[2].(*big.Int).String())
	require.Equal(t, "10", args[3].(*big.Int).String())
}

func TestQuestManagerBinding(t *testing.T) {
	ctx := context.Background()
	d := ledgertest.NewDeployment(alice)
	d.SetStats(alice, 4, 2)
	d.GrantBadge(alice, ledgertest.LoyalistBadgeAddress)

	q, err := LoadQuestManager(NewQuestManagerOptions{Transport: d.Ledger, Address: ledgertest.QuestsAddress})
	require.NoError(t, err)

	stats, err := q.GetUserStats(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.TotalWins.Int64())
	require.Equal(t, int64(2), stats.WinStreak.Int64())

	want := map[types.BadgeKind]common.Address{
		types.BadgeNovice:   ledgertest.NoviceBadgeAddress,
		types.BadgeLoyalist: ledgertest.LoyalistBadgeAddress,
		types.BadgeWhale:    ledgertest.WhaleBadgeAddress,
	}
	for kind, addr := range want {
		got, err := q.BadgeAddress(ctx, kind)
		require.NoError(t, err)
		require.Equal(t, addr, got)

		has, err := q.HasBadge(ctx, alice, got)
		require.NoError(t, err)
		require.Equal(t, kind == types.BadgeLoyalist, has)
	}

	_, err = q.BadgeAddress(ctx, "legend")
	require.Error(t, err)
}

func TestTransportFailuresAreNetworkErrors(t *testing.T) {
	ctx := context.Background()
	d := ledgertest.NewDeployment(alice)
	v, err := LoadVault(NewVaultOptions{Transport: d.Ledger, Address: ledgertest.VaultAddress})
	require.NoError(t, err)

	d.Ledger.FailCalls(errors.New("503 service unavailable"))
	_, err = v.TotalStaked(ctx)
	require.ErrorIs(t, err, types.ErrNetwork)

	d.Ledger.FailCalls(nil)
	d.Ledger.RejectNext(errors.WithStack(types.ErrUserRejected))
	_, err = v.Withdraw(ctx, big.NewInt(1))
	require.ErrorIs(t, err, types.ErrUserRejected)
	require.NotErrorIs(t, err, types.ErrNetwork)
	require.Empty(t, d.Ledger.Sent())
}
