package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/onesafebet/sdk-go/core/derive"
	"github.com/onesafebet/sdk-go/core/mirror"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// MarketsCmd returns the markets command
func MarketsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "markets",
		Short: "List the newest prediction markets with odds and your stakes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadMarkets(ctx, c.PredictionMarket); err != nil {
					return err
				}
				ms := c.PredictionMarket.Markets()
				if len(ms) == 0 {
					env.printf("No markets yet\n")
					return nil
				}
				for _, m := range ms {
					env.printMarket(m, time.Now())
				}
				return nil
			})
		},
	}
}

// MarketCreateCmd returns the market-create command
func MarketCreateCmd(env *Env) *cobra.Command {
	var in types.CreateMarketInput

	cmd := &cobra.Command{
		Use:   "market-create",
		Short: "Open a new yes/no prediction market",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := c.PredictionMarket.RefetchAll(ctx); err != nil {
					return err
				}
				h, err := c.PredictionMarket.CreateMarket(ctx, in)
				if err != nil {
					return err
				}
				if err := settle(ctx, h, c.PredictionMarket.LastCascade); err != nil {
					return err
				}
				if total, ok := c.PredictionMarket.Total(); ok {
					env.printf("Market #%d created\n", total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&in.Question, "question", "q", "", "Yes/no question to predict")
	cmd.Flags().StringVarP(&in.Category, "category", "c", "General", "Market category")
	cmd.Flags().IntVarP(&in.DurationDays, "days", "d", 7, "Days until voting closes")
	cmd.Flags().StringVar(&in.MinStake, "min-stake", "1", "Minimum stake per vote")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}

// MarketVoteCmd returns the market-vote command
func MarketVoteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "market-vote <id> <yes|no> <amount>",
		Short: "Stake vault power on one side of a market",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMarketID(args[0])
			if err != nil {
				return err
			}
			yes, err := types.ParseVoteSide(args[1])
			if err != nil {
				return err
			}
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadMarket(ctx, c.PredictionMarket, id); err != nil {
					return err
				}
				h, err := c.PredictionMarket.Vote(ctx, types.VoteMarketInput{MarketID: id, Yes: yes, Amount: args[2]})
				if err != nil {
					return err
				}
				if err := settle(ctx, h, c.PredictionMarket.LastCascade); err != nil {
					return err
				}
				if m, ok := c.PredictionMarket.Market(id); ok {
					env.printMarket(m, time.Now())
				}
				return nil
			})
		},
	}
}

// MarketClaimCmd returns the market-claim command
func MarketClaimCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "market-claim <id>",
		Short: "Claim winnings from a resolved market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMarketID(args[0])
			if err != nil {
				return err
			}
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadMarket(ctx, c.PredictionMarket, id); err != nil {
					return err
				}
				h, err := c.PredictionMarket.ClaimReward(ctx, id)
				if err != nil {
					return err
				}
				return settle(ctx, h, c.PredictionMarket.LastCascade)
			})
		},
	}
}

func parseMarketID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid market id %q", s)
	}
	return id, nil
}

// loadMarkets refreshes the market count and waits until every watched market
// has been read once.
func loadMarkets(ctx context.Context, p *mirror.PredictionMarket) error {
	if err := p.RefetchAll(ctx); err != nil {
		return err
	}
	total, ok := p.Total()
	if !ok || total == 0 {
		return nil
	}
	waitFor(ctx, func() bool {
		_, ok := p.Market(total)
		return ok
	})
	return p.RefetchAll(ctx)
}

// loadMarket is loadMarkets for one id. An id outside the watched window is
// left to the action's own refusal.
func loadMarket(ctx context.Context, p *mirror.PredictionMarket, id uint64) error {
	if err := p.RefetchAll(ctx); err != nil {
		return err
	}
	if total, ok := p.Total(); !ok || id > total {
		return nil
	}
	waitFor(ctx, func() bool {
		m, ok := p.Market(id)
		return ok && m.VoteKnown
	})
	return nil
}

func (e *Env) printMarket(s types.MarketSnapshot, now time.Time) {
	m := s.Market
	status := "open, closes in " + derive.CountdownTo(m.EndTime, now).Format()
	switch {
	case m.IsResolved && m.Outcome:
		status = "resolved YES"
	case m.IsResolved:
		status = "resolved NO"
	case !derive.MarketOpen(m, now):
		status = "closed"
	}
	yes, no := derive.MarketOdds(m)

	e.printf("#%s [%s] %s\n", m.ID, m.Category, m.Question)
	e.printf("    %s | yes %s%% (%s) | no %s%% (%s) | min stake %s\n",
		status,
		derive.FormatPercent(yes), amount(m.YesPool, util.StorageScale),
		derive.FormatPercent(no), amount(m.NoPool, util.StorageScale),
		amount(m.MinStake, util.StorageScale),
	)
	if s.UserVote.HasStake() {
		e.printf("    your stake: %s on %s\n", amount(s.UserVote.Amount, util.StorageScale), s.UserVote.Choice)
	}
	if derive.MarketClaimEligible(s) {
		e.printf("    winnings available: run `osb market-claim %s`\n", m.ID)
	}
}
