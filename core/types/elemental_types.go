package types

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Faction is the on-chain faction enum (uint8).
type Faction uint8

const (
	FactionNone Faction = iota
	FactionFire
	FactionWater
	FactionWind
)

// Factions lists the votable factions in enum order.
var Factions = []Faction{FactionFire, FactionWater, FactionWind}

func (f Faction) String() string {
	switch f {
	case FactionNone:
		return "none"
	case FactionFire:
		return "fire"
	case FactionWater:
		return "water"
	case FactionWind:
		return "wind"
	default:
		return fmt.Sprintf("faction(%d)", uint8(f))
	}
}

// Valid reports whether f can be voted for.
func (f Faction) Valid() bool {
	return f >= FactionFire && f <= FactionWind
}

// ParseFaction accepts a faction name, case-insensitive.
func ParseFaction(s string) (Faction, error) {
	for _, f := range Factions {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return FactionNone, fmt.Errorf("%w: %q", ErrInvalidFaction, s)
}

// Round mirrors ElementalGame.getRoundInfo. Times are unix seconds.
type Round struct {
	ID              *big.Int
	StartTime       *big.Int
	LockTime        *big.Int
	EndTime         *big.Int
	TotalPowerFire  *big.Int
	TotalPowerWater *big.Int
	TotalPowerWind  *big.Int
	TotalYieldPot   *big.Int
	WinningFaction  Faction
	IsResolved      bool
}

// Pool returns the committed power for f, zero for FactionNone.
func (r Round) Pool(f Faction) *big.Int {
	var v *big.Int
	switch f {
	case FactionFire:
		v = r.TotalPowerFire
	case FactionWater:
		v = r.TotalPowerWater
	case FactionWind:
		v = r.TotalPowerWind
	}
	if v == nil {
		return new(big.Int)
	}
	return v
}

// IElementalGame is the faction-voting round ledger.
type IElementalGame interface {
	// Maps to: currentRoundId()
	CurrentRoundID(ctx context.Context) (*big.Int, error)
	// Maps to: getRoundInfo(uint256)
	GetRoundInfo(ctx context.Context, roundID *big.Int) (Round, error)
	// Maps to: getUserVote(uint256,address)
	GetUserVote(ctx context.Context, roundID *big.Int, user common.Address) (Faction, error)
	// Maps to: hasClaimed(uint256,address)
	HasClaimed(ctx context.Context, roundID *big.Int, user common.Address) (bool, error)
	// Vote commits the caller's whole vault balance to faction.
	// Maps to: vote(uint8)
	Vote(ctx context.Context, faction Faction) (common.Hash, error)
	// Maps to: claimReward(uint256)
	ClaimReward(ctx context.Context, roundID *big.Int) (common.Hash, error)

	Address() common.Address
}

// RoundSnapshot mirrors the current round for one account.
type RoundSnapshot struct {
	RoundID    *big.Int // nil until currentRoundId was read
	Round      *Round   // nil until getRoundInfo was read
	UserVote   Faction
	VoteKnown  bool
	HasClaimed bool
}
