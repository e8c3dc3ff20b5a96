package derive

import (
	"math/big"

	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// ClaimEligible is true only for a resolved, unclaimed position with a stake.
func ClaimEligible(isResolved, hasClaimed bool, stake bool) bool {
	return isResolved && !hasClaimed && stake
}

// RoundClaimEligible applies ClaimEligible to the current round snapshot.
// A recorded faction vote counts as the stake.
func RoundClaimEligible(s types.RoundSnapshot) bool {
	if s.Round == nil || !s.VoteKnown {
		return false
	}
	return ClaimEligible(s.Round.IsResolved, s.HasClaimed, s.UserVote != types.FactionNone)
}

// MarketClaimEligible applies ClaimEligible to one market snapshot.
func MarketClaimEligible(s types.MarketSnapshot) bool {
	if !s.VoteKnown {
		return false
	}
	return ClaimEligible(s.Market.IsResolved, s.HasClaimed, s.UserVote.HasStake())
}

// FullBalanceStake is the elemental game rule: a vote commits the entire
// power balance.
func FullBalanceStake(balance *big.Int) (*big.Int, error) {
	if balance == nil || balance.Sign() <= 0 {
		return nil, errors.Wrap(types.ErrInsufficientFunds, "no power to commit")
	}
	return new(big.Int).Set(balance), nil
}

// CheckStake is the prediction market rule: any positive amount up to the
// power balance.
func CheckStake(requested, balance *big.Int) error {
	if requested == nil || requested.Sign() <= 0 {
		return errors.Wrap(types.ErrInvalidAmount, "stake must be positive")
	}
	if balance == nil || requested.Cmp(balance) > 0 {
		return errors.Wrapf(types.ErrInsufficientFunds, "stake %s exceeds balance %s", requested, orZero(balance))
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
