package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/onesafebet/sdk-go/core/mirror"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/spf13/cobra"
)

// QuestsCmd returns the quests command
func QuestsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "quests",
		Short: "Show win counters and badges of the connected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := c.Quests.RefetchAll(ctx); err != nil {
					return err
				}
				// badge ownership is only read once the badge addresses are known
				waitFor(ctx, func() bool {
					return !c.Session().IsConnected() || len(c.Quests.Snapshot().Badges) == len(types.BadgeKinds)
				})
				env.printQuests(c.Quests)
				return nil
			})
		},
	}
}

func (e *Env) printQuests(q *mirror.Quests) {
	s := q.Snapshot()
	if s.Stats == nil {
		e.printf("No quest progress (not connected)\n")
		return
	}
	e.printf("Wins:   %s\n", s.Stats.TotalWins)
	e.printf("Streak: %s\n", s.Stats.WinStreak)
	e.printf("Badges:\n")
	owned := color.New(color.FgGreen).Sprint("owned")
	for _, kind := range types.BadgeKinds {
		mark := "-"
		if s.Badges[kind] {
			mark = owned
		}
		e.printf("  %-9s %s\n", kind, mark)
	}
}
