package contractsapi

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
)

// PredictionMarket provides methods for interacting with the yes/no pool markets
type PredictionMarket struct {
	c *contract
}

// Compile-time check that PredictionMarket implements IPredictionMarket
var _ types.IPredictionMarket = (*PredictionMarket)(nil)

// NewPredictionMarketOptions contains options for creating a PredictionMarket instance
type NewPredictionMarketOptions struct {
	Transport types.Transport
	Address   common.Address
}

// LoadPredictionMarket creates a new PredictionMarket instance with the given options
func LoadPredictionMarket(options NewPredictionMarketOptions) (*PredictionMarket, error) {
	parsed, err := contracts.PredictionMarketABI()
	if err != nil {
		return nil, err
	}
	c, err := newContract("predictionMarket", options.Address, parsed, options.Transport)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &PredictionMarket{c: c}, nil
}

func (p *PredictionMarket) Address() common.Address { return p.c.address }

// marketTuple matches the getMarket tuple layout field by field
type marketTuple struct {
	Id         *big.Int
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

// ═══════════════════════════════════════════════════════════════
// MARKET OPERATIONS
// ═══════════════════════════════════════════════════════════════

// GetTotalMarkets returns the market count
// Maps to: getTotalMarkets()
func (p *PredictionMarket) GetTotalMarkets(ctx context.Context) (*big.Int, error) {
	out, err := p.c.callOne(ctx, "getTotalMarkets")
	if err != nil {
		return nil, err
	}
	return extractBigInt(out, "getTotalMarkets")
}

// GetMarket retrieves market details by ID
// Maps to: getMarket(marketId)
func (p *PredictionMarket) GetMarket(ctx context.Context, marketID *big.Int) (types.Market, error) {
	if marketID == nil || marketID.Sign() <= 0 {
		return types.Market{}, fmt.Errorf("market id must be positive")
	}
	out, err := p.c.callOne(ctx, "getMarket", marketID)
	if err != nil {
		return types.Market{}, err
	}

	t := *abi.ConvertType(out, new(marketTuple)).(*marketTuple)
	return types.Market{
		ID:         t.Id,
		Question:   t.Question,
		Category:   t.Category,
		CreatedAt:  t.CreatedAt,
		EndTime:    t.EndTime,
		YesPool:    t.YesPool,
		NoPool:     t.NoPool,
		YesVoters:  t.YesVoters,
		NoVoters:   t.NoVoters,
		MinStake:   t.MinStake,
		IsResolved: t.IsResolved,
		Outcome:    t.Outcome,
		IsActive:   t.IsActive,
	}, nil
}

// GetUserVote returns the side (0 none, 1 yes, 2 no) and amount the user committed
// Maps to: getUserVote(marketId, user)
func (p *PredictionMarket) GetUserVote(ctx context.Context, marketID *big.Int, user common.Address) (types.MarketVote, error) {
	out, err := p.c.call(ctx, "getUserVote", marketID, user)
	if err != nil {
		return types.MarketVote{}, err
	}
	if len(out) != 2 {
		return types.MarketVote{}, fmt.Errorf("getUserVote: expected 2 outputs, got %d", len(out))
	}

	choice, err := extractUint8(out[0], "getUserVote")
	if err != nil {
		return types.MarketVote{}, errors.WithStack(err)
	}
	amount, err := extractBigInt(out[1], "getUserVote")
	if err != nil {
		return types.MarketVote{}, errors.WithStack(err)
	}
	return types.MarketVote{Choice: types.VoteChoice(choice), Amount: amount}, nil
}

// CalculatePotentialWin quotes the payout of staking amount on choice
// Maps to: calculatePotentialWin(marketId, choice, amount)
func (p *PredictionMarket) CalculatePotentialWin(ctx context.Context, marketID *big.Int, choice bool, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.Wrap(types.ErrInvalidAmount, "amount must be positive")
	}
	out, err := p.c.callOne(ctx, "calculatePotentialWin", marketID, choice, amount)
	if err != nil {
		return nil, err
	}
	return extractBigInt(out, "calculatePotentialWin")
}

// CreateMarket creates a new prediction market
// Maps to: createMarket(question, category, duration, minStake)
func (p *PredictionMarket) CreateMarket(ctx context.Context, input types.CreateMarketArgs) (common.Hash, error) {
	if err := input.Validate(); err != nil {
		return common.Hash{}, errors.WithStack(err)
	}
	args, err := util.StructAsArgs(input)
	if err != nil {
		return common.Hash{}, errors.WithStack(err)
	}
	return p.c.execute(ctx, "createMarket", nil, args...)
}

// Vote stakes amount on one side of a market. Partial amounts are allowed.
// Maps to: vote(marketId, choice, amount)
func (p *PredictionMarket) Vote(ctx context.Context, input types.VoteMarketArgs) (common.Hash, error) {
	if err := input.Validate(); err != nil {
		return common.Hash{}, errors.WithStack(err)
	}
	args, err := util.StructAsArgs(input)
	if err != nil {
		return common.Hash{}, errors.WithStack(err)
	}
	return p.c.execute(ctx, "vote", nil, args...)
}

// ClaimReward claims the payout of a resolved market
// Maps to: claimReward(marketId)
func (p *PredictionMarket) ClaimReward(ctx context.Context, marketID *big.Int) (common.Hash, error) {
	if marketID == nil || marketID.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("market id must be positive")
	}
	return p.c.execute(ctx, "claimReward", nil, marketID)
}
