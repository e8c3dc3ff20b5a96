package derive

import (
	"math/big"

	"github.com/onesafebet/sdk-go/core/types"
)

// dominance maps each faction to the faction it beats. Fire beats wind,
// wind beats water, water beats fire.
var dominance = map[types.Faction]types.Faction{
	types.FactionFire:  types.FactionWind,
	types.FactionWind:  types.FactionWater,
	types.FactionWater: types.FactionFire,
}

// Prey returns the faction f beats, FactionNone for an invalid faction.
func Prey(f types.Faction) types.Faction {
	return dominance[f]
}

// Predator returns the faction that beats f, FactionNone for an invalid faction.
func Predator(f types.Faction) types.Faction {
	for hunter, prey := range dominance {
		if prey == f {
			return hunter
		}
	}
	return types.FactionNone
}

// FactionSplit is the percentage of committed power per faction.
type FactionSplit map[types.Faction]*big.Rat

// RoundSplit splits the three faction pools of r. A nil round splits to zero.
func RoundSplit(r *types.Round) FactionSplit {
	var round types.Round
	if r != nil {
		round = *r
	}
	pools := make([]*big.Int, len(types.Factions))
	for i, f := range types.Factions {
		pools[i] = round.Pool(f)
	}
	split := Split(pools...)

	out := make(FactionSplit, len(types.Factions))
	for i, f := range types.Factions {
		out[f] = split[i]
	}
	return out
}

// Get returns the percentage of f, zero when absent.
func (s FactionSplit) Get(f types.Faction) *big.Rat {
	if p, ok := s[f]; ok && p != nil {
		return p
	}
	return new(big.Rat)
}

// Advantage is percentage(prey of f) minus percentage(predator of f).
func Advantage(s FactionSplit, f types.Faction) *big.Rat {
	return new(big.Rat).Sub(s.Get(Prey(f)), s.Get(Predator(f)))
}

// Advantages returns the advantage of every faction. The values always sum to zero.
func Advantages(s FactionSplit) map[types.Faction]*big.Rat {
	out := make(map[types.Faction]*big.Rat, len(types.Factions))
	for _, f := range types.Factions {
		out[f] = Advantage(s, f)
	}
	return out
}
