package types

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ═══════════════════════════════════════════════════════════════
// INTERFACES
// ═══════════════════════════════════════════════════════════════

// IPredictionMarket is the yes/no pool market ledger.
type IPredictionMarket interface {
	// GetTotalMarkets returns the number of markets. Ids run from 1 to total.
	// Maps to: getTotalMarkets()
	GetTotalMarkets(ctx context.Context) (*big.Int, error)

	// GetMarket retrieves market details by id
	// Maps to: getMarket(uint256)
	GetMarket(ctx context.Context, marketID *big.Int) (Market, error)

	// GetUserVote returns the side and amount the user committed
	// Maps to: getUserVote(uint256,address)
	GetUserVote(ctx context.Context, marketID *big.Int, user common.Address) (MarketVote, error)

	// CalculatePotentialWin quotes the payout for a hypothetical vote
	// Maps to: calculatePotentialWin(uint256,bool,uint256)
	CalculatePotentialWin(ctx context.Context, marketID *big.Int, choice bool, amount *big.Int) (*big.Int, error)

	// Maps to: createMarket(string,string,uint256,uint256)
	CreateMarket(ctx context.Context, args CreateMarketArgs) (common.Hash, error)

	// Maps to: vote(uint256,bool,uint256)
	Vote(ctx context.Context, args VoteMarketArgs) (common.Hash, error)

	// Maps to: claimReward(uint256)
	ClaimReward(ctx context.Context, marketID *big.Int) (common.Hash, error)

	Address() common.Address
}

// ═══════════════════════════════════════════════════════════════
// LEDGER TYPES
// ═══════════════════════════════════════════════════════════════

// Market mirrors PredictionMarket.getMarket. Times are unix seconds.
type Market struct {
	ID         *big.Int
	Question   string
	Category   string
	CreatedAt  *big.Int
	EndTime    *big.Int
	YesPool    *big.Int
	NoPool     *big.Int
	YesVoters  *big.Int
	NoVoters   *big.Int
	MinStake   *big.Int
	IsResolved bool
	Outcome    bool
	IsActive   bool
}

// VoteChoice is the side recorded by getUserVote.
type VoteChoice uint8

const (
	VoteNone VoteChoice = iota
	VoteYes
	VoteNo
)

func (c VoteChoice) String() string {
	switch c {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	default:
		return "none"
	}
}

// ParseVoteSide maps "yes"/"no" to the boolean side used by vote().
func ParseVoteSide(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false":
		return false, nil
	}
	return false, fmt.Errorf("side must be yes or no, got %q", s)
}

// MarketVote is the user's recorded stake in one market.
type MarketVote struct {
	Choice VoteChoice
	Amount *big.Int
}

// HasStake reports whether the user committed a non-zero amount.
func (v MarketVote) HasStake() bool {
	return v.Choice != VoteNone && v.Amount != nil && v.Amount.Sign() > 0
}

// MarketSnapshot mirrors one market for one account.
type MarketSnapshot struct {
	Market     Market
	UserVote   MarketVote
	VoteKnown  bool
	HasClaimed bool // not exposed by the ledger, always false
}

// ═══════════════════════════════════════════════════════════════
// INPUT TYPES
// ═══════════════════════════════════════════════════════════════

// CreateMarketInput is the human-facing request for a new market.
type CreateMarketInput struct {
	Question     string `validate:"required,max=280"`
	Category     string `validate:"required,max=64"`
	DurationDays int    `validate:"gte=1,lte=365"`
	MinStake     string `validate:"required"` // decimal, storage scale
}

// Validate checks fields that tags cannot express.
func (c *CreateMarketInput) Validate() error {
	if strings.TrimSpace(c.Question) == "" {
		return fmt.Errorf("question is required")
	}
	if strings.TrimSpace(c.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if c.DurationDays <= 0 {
		return fmt.Errorf("duration must be positive, got %d days", c.DurationDays)
	}
	return nil
}

// Duration returns the market lifetime.
func (c *CreateMarketInput) Duration() time.Duration {
	return time.Duration(c.DurationDays) * 24 * time.Hour
}

// CreateMarketArgs is the ABI argument list of createMarket, in order.
type CreateMarketArgs struct {
	Question string   `validate:"required"`
	Category string   `validate:"required"`
	Duration *big.Int `validate:"required"` // seconds
	MinStake *big.Int `validate:"required"`
}

// Validate validates CreateMarketArgs
func (c *CreateMarketArgs) Validate() error {
	if c.Question == "" || c.Category == "" {
		return fmt.Errorf("question and category are required")
	}
	if c.Duration == nil || c.Duration.Sign() <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.MinStake == nil || c.MinStake.Sign() < 0 {
		return fmt.Errorf("min stake must not be negative")
	}
	return nil
}

// VoteMarketInput is the human-facing request to stake on one side.
type VoteMarketInput struct {
	MarketID uint64 `validate:"gt=0"`
	Yes      bool
	Amount   string `validate:"required"` // decimal, storage scale; partial amounts allowed
}

// VoteMarketArgs is the ABI argument list of vote, in order.
type VoteMarketArgs struct {
	MarketID *big.Int `validate:"required"`
	Choice   bool
	Amount   *big.Int `validate:"required"`
}

// Validate validates VoteMarketArgs
func (v *VoteMarketArgs) Validate() error {
	if v.MarketID == nil || v.MarketID.Sign() <= 0 {
		return fmt.Errorf("market id must be positive")
	}
	if v.Amount == nil || v.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return nil
}
