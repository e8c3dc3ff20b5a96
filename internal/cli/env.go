package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/onesafebet/sdk-go/core/config"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/notify"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
)

const defaultTimeout = 2 * time.Minute

// Env carries the I/O streams and client construction shared by all commands.
type Env struct {
	Out io.Writer
	In  io.Reader

	// LoadConfig defaults to config.Load.
	LoadConfig func() (config.Config, error)
	// Options are appended to every client, after the ones built from flags.
	Options []osbclient.Option

	yes     bool
	account string
	timeout time.Duration
	metrics *metrics.Registry
}

// DefaultEnv reads the OSB_* environment and talks to the terminal.
func DefaultEnv() *Env {
	return &Env{Out: os.Stdout, In: os.Stdin, LoadConfig: config.Load}
}

// open builds a client from the configuration and the persistent flags.
func (e *Env) open(ctx context.Context) (*osbclient.Client, error) {
	load := e.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(logger)

	opts := []osbclient.Option{
		osbclient.WithLogger(logger),
		osbclient.WithSink(notify.NewTerminalSink(e.Out)),
		osbclient.WithMetrics(e.metrics),
	}
	if !cfg.ReadOnly() {
		key, err := osbclient.NewKeySigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, osbclient.WithSigner(NewPromptSigner(key, e.In, e.Out, e.yes)))
	}
	c, err := osbclient.NewClient(ctx, cfg, append(opts, e.Options...)...)
	if err != nil {
		return nil, err
	}
	if e.account != "" {
		addr, err := util.ParseAddress(e.account)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Connect(addr)
	}
	return c, nil
}

// run opens a client for the lifetime of fn.
func (e *Env) run(ctx context.Context, fn func(context.Context, *osbclient.Client) error) error {
	c, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	timeout := e.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx, c)
}

// settle waits for the write behind h and then for the reconciliation
// cascade, so the printed state already reflects the change.
func settle(ctx context.Context, h *ledgersync.Handle, cascade func() *ledgersync.Schedule) error {
	if _, err := h.Wait(ctx); err != nil {
		return err
	}
	s := cascade()
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for the ledger to reflect the change")
	}
}

// waitFor polls cond until it holds or ctx ends.
func waitFor(ctx context.Context, cond func() bool) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}
