package derive

import (
	"math/big"
	"time"

	"github.com/onesafebet/sdk-go/core/types"
)

// MarketOdds splits a market into yes and no percentages.
func MarketOdds(m types.Market) (yes, no *big.Rat) {
	split := Split(m.YesPool, m.NoPool)
	return split[0], split[1]
}

// PayoutPercent is the gross return, as a percentage of the stake, of a side
// with pool mine against opposite. It is nil when the side has no stake yet.
func PayoutPercent(mine, opposite *big.Int) *big.Rat {
	if mine == nil || mine.Sign() <= 0 {
		return nil
	}
	total := new(big.Int).Add(mine, orZero(opposite))
	r := new(big.Rat).SetFrac(total, mine)
	return r.Mul(r, hundred)
}

// MarketOpen reports whether the market accepts votes at now.
func MarketOpen(m types.Market, now time.Time) bool {
	if !m.IsActive || m.IsResolved || m.EndTime == nil {
		return false
	}
	return big.NewInt(now.Unix()).Cmp(m.EndTime) < 0
}
