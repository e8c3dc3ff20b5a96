// Package derive holds the pure calculations made over ledger snapshots:
// pool splits, faction advantages, countdowns and eligibility flags.
package derive

import (
	"math/big"
)

var hundred = big.NewRat(100, 1)

// Split returns 100*pool[i]/sum(pools) for every pool, exactly. All entries
// are zero when the sum is zero. Nil and negative pools count as zero.
func Split(pools ...*big.Int) []*big.Rat {
	sum := new(big.Int)
	for _, p := range pools {
		if p != nil && p.Sign() > 0 {
			sum.Add(sum, p)
		}
	}

	out := make([]*big.Rat, len(pools))
	for i, p := range pools {
		out[i] = new(big.Rat)
		if sum.Sign() == 0 || p == nil || p.Sign() <= 0 {
			continue
		}
		out[i].SetFrac(p, sum)
		out[i].Mul(out[i], hundred)
	}
	return out
}

// WholePercent truncates a percentage toward zero.
func WholePercent(p *big.Rat) int64 {
	if p == nil {
		return 0
	}
	return new(big.Int).Quo(p.Num(), p.Denom()).Int64()
}

// FormatPercent renders p with one decimal, the way pools are displayed.
// Digits past the first decimal are dropped, never rounded up.
func FormatPercent(p *big.Rat) string {
	if p == nil {
		return "0.0"
	}
	tenths := new(big.Int).Quo(new(big.Int).Mul(p.Num(), big.NewInt(10)), p.Denom())
	return new(big.Rat).SetFrac(tenths, big.NewInt(10)).FloatString(1)
}
