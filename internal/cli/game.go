package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/onesafebet/sdk-go/core/derive"
	"github.com/onesafebet/sdk-go/core/mirror"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/spf13/cobra"
)

var factionColors = map[types.Faction]*color.Color{
	types.FactionFire:  color.New(color.FgRed, color.Bold),
	types.FactionWater: color.New(color.FgBlue, color.Bold),
	types.FactionWind:  color.New(color.FgGreen, color.Bold),
}

func factionLabel(f types.Faction) string {
	if c, ok := factionColors[f]; ok {
		return c.Sprintf("%-5s", f)
	}
	return f.String()
}

// RoundCmd returns the round command
func RoundCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "round",
		Short: "Show the current elemental round, its pools and your vote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadRound(ctx, c.ElementalGame); err != nil {
					return err
				}
				env.printRound(c.ElementalGame)
				return nil
			})
		},
	}
}

// VoteCmd returns the vote command
func VoteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <fire|water|wind>",
		Short: "Commit your whole vault power to a faction for the current round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			faction, err := types.ParseFaction(args[0])
			if err != nil {
				return err
			}
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadRound(ctx, c.ElementalGame); err != nil {
					return err
				}
				h, err := c.ElementalGame.Vote(ctx, faction)
				if err != nil {
					return err
				}
				if err := settle(ctx, h, c.ElementalGame.LastCascade); err != nil {
					return err
				}
				env.printRound(c.ElementalGame)
				return nil
			})
		},
	}
}

// ClaimRoundCmd returns the claim-round command
func ClaimRoundCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "claim-round",
		Short: "Claim the reward of the current round once it is resolved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := loadRound(ctx, c.ElementalGame); err != nil {
					return err
				}
				h, err := c.ElementalGame.ClaimReward(ctx)
				if err != nil {
					return err
				}
				return settle(ctx, h, c.ElementalGame.LastCascade)
			})
		},
	}
}

// loadRound refetches the round id and waits for the round-scoped reads it
// brings up.
func loadRound(ctx context.Context, g *mirror.ElementalGame) error {
	if err := g.RefetchAll(ctx); err != nil {
		return err
	}
	waitFor(ctx, func() bool {
		s := g.Snapshot()
		if s.RoundID == nil || s.RoundID.Sign() == 0 {
			return true
		}
		return s.Round != nil && s.Round.ID.Cmp(s.RoundID) == 0
	})
	return g.RefetchAll(ctx)
}

func (e *Env) printRound(g *mirror.ElementalGame) {
	s := g.Snapshot()
	if s.Round == nil {
		e.printf("No round in progress\n")
		return
	}
	r := s.Round
	status := "open, locks in " + g.TimeUntilLock().Format()
	switch {
	case r.IsResolved:
		status = "resolved, winner " + factionLabel(r.WinningFaction)
	case g.IsLocked():
		status = "locked, ends in " + g.TimeUntilEnd().Format()
	}
	e.printf("Round %s (%s)\n", r.ID, status)
	e.printf("Yield pot: %s\n\n", amount(r.TotalYieldPot, util.StorageScale))

	split := g.Percentages()
	advantages := g.Advantages()
	for _, f := range types.Factions {
		e.printf("  %s %6s%%  %s  advantage %s\n",
			factionLabel(f),
			derive.FormatPercent(split.Get(f)),
			amount(r.Pool(f), util.StorageScale),
			advantages[f].FloatString(1),
		)
	}
	e.printf("\n")

	switch {
	case !s.VoteKnown:
		e.printf("Your vote: -\n")
	case s.UserVote == types.FactionNone:
		e.printf("Your vote: none\n")
	default:
		e.printf("Your vote: %s\n", factionLabel(s.UserVote))
	}
	if g.CanClaim() {
		e.printf("Reward available: run `osb claim-round`\n")
	}
}
