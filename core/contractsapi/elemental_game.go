package contractsapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// ElementalGame provides methods for interacting with the faction-voting rounds
type ElementalGame struct {
	c *contract
}

var _ types.IElementalGame = (*ElementalGame)(nil)

type NewElementalGameOptions struct {
	Transport types.Transport
	Address   common.Address
}

func LoadElementalGame(options NewElementalGameOptions) (*ElementalGame, error) {
	parsed, err := contracts.ElementalGameABI()
	if err != nil {
		return nil, err
	}
	c, err := newContract("elementalGame", options.Address, parsed, options.Transport)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ElementalGame{c: c}, nil
}

func (g *ElementalGame) Address() common.Address { return g.c.address }

// roundTuple matches the getRoundInfo tuple layout field by field
type roundTuple struct {
	Id              *big.Int
	StartTime       *big.Int
	LockTime        *big.Int
	EndTime         *big.Int
	TotalPowerFire  *big.Int
	TotalPowerWater *big.Int
	TotalPowerWind  *big.Int
	TotalYieldPot   *big.Int
	WinningFaction  uint8
	IsResolved      bool
}

// ═══════════════════════════════════════════════════════════════
// QUERY OPERATIONS
// ═══════════════════════════════════════════════════════════════

func (g *ElementalGame) CurrentRoundID(ctx context.Context) (*big.Int, error) {
	out, err := g.c.callOne(ctx, "currentRoundId")
	if err != nil {
		return nil, err
	}
	return extractBigInt(out, "currentRoundId")
}

func (g *ElementalGame) GetRoundInfo(ctx context.Context, roundID *big.Int) (types.Round, error) {
	if roundID == nil {
		return types.Round{}, errors.New("round id is required")
	}
	out, err := g.c.callOne(ctx, "getRoundInfo", roundID)
	if err != nil {
		return types.Round{}, err
	}

	t := *abi.ConvertType(out, new(roundTuple)).(*roundTuple)
	return types.Round{
		ID:              t.Id,
		StartTime:       t.StartTime,
		LockTime:        t.LockTime,
		EndTime:         t.EndTime,
		TotalPowerFire:  t.TotalPowerFire,
		TotalPowerWater: t.TotalPowerWater,
		TotalPowerWind:  t.TotalPowerWind,
		TotalYieldPot:   t.TotalYieldPot,
		WinningFaction:  types.Faction(t.WinningFaction),
		IsResolved:      t.IsResolved,
	}, nil
}

func (g *ElementalGame) GetUserVote(ctx context.Context, roundID *big.Int, user common.Address) (types.Faction, error) {
	out, err := g.c.callOne(ctx, "getUserVote", roundID, user)
	if err != nil {
		return types.FactionNone, err
	}
	v, err := extractUint8(out, "getUserVote")
	if err != nil {
		return types.FactionNone, err
	}
	return types.Faction(v), nil
}

func (g *ElementalGame) HasClaimed(ctx context.Context, roundID *big.Int, user common.Address) (bool, error) {
	out, err := g.c.callOne(ctx, "hasClaimed", roundID, user)
	if err != nil {
		return false, err
	}
	return extractBool(out, "hasClaimed")
}

// ═══════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ═══════════════════════════════════════════════════════════════

// Vote commits the caller's entire vault balance to faction. The ledger
// reads the balance itself; no amount is passed.
func (g *ElementalGame) Vote(ctx context.Context, faction types.Faction) (common.Hash, error) {
	if !faction.Valid() {
		return common.Hash{}, errors.Wrapf(types.ErrInvalidFaction, "faction %d", uint8(faction))
	}
	return g.c.execute(ctx, "vote", nil, uint8(faction))
}

func (g *ElementalGame) ClaimReward(ctx context.Context, roundID *big.Int) (common.Hash, error) {
	if roundID == nil {
		return common.Hash{}, errors.New("round id is required")
	}
	return g.c.execute(ctx, "claimReward", nil, roundID)
}
