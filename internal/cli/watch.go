package cli

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onesafebet/sdk-go/core/derive"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WatchCmd returns the watch command
func WatchCmd(env *Env) *cobra.Command {
	var (
		every       time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the mirrors polling and print a summary line periodically",
		Long: `Keep every mirror polling at its configured interval and print one summary
line per tick until interrupted. With --metrics-addr (or OSB_METRICS_ADDR) the
read, write and reconciliation counters are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every <= 0 {
				return errors.Errorf("--every must be positive, got %s", every)
			}
			ctx := cmd.Context()
			env.metrics = metrics.New("osb")
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if metricsAddr == "" {
				metricsAddr = c.Config().MetricsAddr
			}
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, env.metrics)
				defer stop()
			}

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case now := <-ticker.C:
					env.printf("%s\n", summaryLine(c, now))
				}
			}
		},
	}

	cmd.Flags().DurationVar(&every, "every", 10*time.Second, "Time between summary lines")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func serveMetrics(addr string, registry *metrics.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logging.Logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func summaryLine(c *osbclient.Client, now time.Time) string {
	parts := []string{now.Format("15:04:05")}

	v := c.Vault.Snapshot()
	if v.Connected {
		parts = append(parts, util.ShortAddress(v.Account)+" power "+amount(v.Balance, util.StorageScale))
	} else {
		parts = append(parts, "not connected")
	}

	g := c.ElementalGame.Snapshot()
	if g.Round != nil {
		split := c.ElementalGame.Percentages()
		round := "round " + g.Round.ID.String()
		for _, f := range types.Factions {
			round += " " + f.String() + " " + derive.FormatPercent(split.Get(f)) + "%"
		}
		if c.ElementalGame.IsLocked() {
			round += " (locked)"
		} else {
			round += " (locks in " + c.ElementalGame.TimeUntilLock().Format() + ")"
		}
		parts = append(parts, round)
	} else {
		parts = append(parts, "no round")
	}

	if total, ok := c.PredictionMarket.Total(); ok {
		parts = append(parts, "markets "+strconv.FormatUint(total, 10))
	}
	if q := c.Quests.Snapshot(); q.Stats != nil {
		parts = append(parts, "wins "+q.Stats.TotalWins.String())
	}
	if err := firstErr(c); err != nil {
		parts = append(parts, "error: "+types.Describe(err))
	}
	return strings.Join(parts, " | ")
}

func firstErr(c *osbclient.Client) error {
	for _, err := range []error{c.Vault.Err(), c.ElementalGame.Err(), c.PredictionMarket.Err(), c.Quests.Err()} {
		if err != nil {
			return err
		}
	}
	return nil
}
