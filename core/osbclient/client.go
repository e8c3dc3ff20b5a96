// Package osbclient assembles the ledger mirrors over a JSON-RPC transport.
package osbclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/onesafebet/sdk-go/core/config"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/metrics"
	"github.com/onesafebet/sdk-go/core/mirror"
	"github.com/onesafebet/sdk-go/core/notify"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Client struct {
	Transport types.Transport `validate:"required"`

	Vault            *mirror.Vault            `validate:"required"`
	ElementalGame    *mirror.ElementalGame    `validate:"required"`
	PredictionMarket *mirror.PredictionMarket `validate:"required"`
	Quests           *mirror.Quests           `validate:"required"`

	cfg     config.Config
	session *ledgersync.Session
	signer  types.Signer
	sink    types.NotificationSink
	logger  *zap.Logger
	metrics *metrics.Registry
	closers []func()
}

type Option func(*Client)

// NewClient dials cfg.RPCURL unless a transport is supplied, builds the four
// mirrors and, when a signer is available, connects the session to its account.
func NewClient(ctx context.Context, cfg config.Config, options ...Option) (*Client, error) {
	c := &Client{cfg: cfg, session: ledgersync.NewSession()}
	for _, option := range options {
		option(c)
	}
	c.logger = logging.OrGlobal(c.logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if c.Transport == nil {
		if c.signer == nil && !cfg.ReadOnly() {
			signer, err := NewKeySigner(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signer = signer
		}
		transport, err := DialRPCTransport(ctx, cfg.RPCURL, TransportOptions{
			ChainID:   big.NewInt(cfg.ChainID),
			Signer:    c.signer,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
			Logger:    c.logger,
		})
		if err != nil {
			return nil, err
		}
		c.Transport = transport
		c.closers = append(c.closers, transport.Close)
	} else {
		c.signer = c.Transport.Signer()
	}

	if c.sink == nil {
		c.sink = notify.NewLogSink(c.logger)
	}

	if err := c.buildMirrors(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.Validate(); err != nil {
		c.Close()
		return nil, errors.WithStack(err)
	}

	if c.signer != nil {
		c.session.Connect(c.signer.Address())
	}
	return c, nil
}

func (c *Client) buildMirrors() error {
	vaultAddr, gameAddr, marketAddr, questsAddr := c.cfg.Addresses()
	deps := mirror.Deps{
		Transport:       c.Transport,
		Session:         c.session,
		Sink:            c.sink,
		Logger:          c.logger,
		Metrics:         c.metrics,
		ExplorerURL:     c.cfg.ExplorerURL,
		ReceiptInterval: c.cfg.ReceiptInterval,
	}

	var err error
	c.Vault, err = mirror.NewVault(deps, mirror.VaultOptions{
		Address:         vaultAddr,
		BalanceInterval: c.cfg.VaultBalanceInterval,
		TotalInterval:   c.cfg.VaultTotalInterval,
		WalletInterval:  c.cfg.WalletInterval,
		Cascade:         c.cfg.VaultCascade,
	})
	if err != nil {
		return errors.Wrap(err, "vault")
	}
	c.closers = append(c.closers, c.Vault.Close)

	c.Quests, err = mirror.NewQuests(deps, mirror.QuestsOptions{
		Address:  questsAddr,
		Interval: c.cfg.QuestInterval,
	})
	if err != nil {
		return errors.Wrap(err, "quests")
	}
	c.closers = append(c.closers, c.Quests.Close)

	c.ElementalGame, err = mirror.NewElementalGame(deps, c.Vault, mirror.ElementalGameOptions{
		Address:       gameAddr,
		RoundInterval: c.cfg.RoundInterval,
		UserInterval:  c.cfg.RoundUserInterval,
		Cascade:       c.cfg.GameCascade,
	})
	if err != nil {
		return errors.Wrap(err, "elemental game")
	}
	c.closers = append(c.closers, c.ElementalGame.Close)

	c.PredictionMarket, err = mirror.NewPredictionMarket(deps, c.Vault, mirror.PredictionMarketOptions{
		Address:        marketAddr,
		MarketInterval: c.cfg.MarketInterval,
		UserInterval:   c.cfg.MarketUserInterval,
		MaxWatched:     c.cfg.MaxWatchedMarkets,
		Cascade:        c.cfg.MarketCascade,
	})
	if err != nil {
		return errors.Wrap(err, "prediction market")
	}
	c.closers = append(c.closers, c.PredictionMarket.Close)

	// game rewards land in the vault and feed the quest counters
	c.ElementalGame.Link(c.Vault, c.Quests)
	c.PredictionMarket.Link(c.Vault)

	c.logger.Debug("mirrors ready",
		zap.Strings("contracts", util.AddressesToStrings([]common.Address{vaultAddr, gameAddr, marketAddr, questsAddr})),
		zap.Bool("readOnly", c.signer == nil),
	)
	return nil
}

func (c *Client) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func WithTransport(transport types.Transport) Option {
	return func(c *Client) {
		c.Transport = transport
	}
}

// WithSigner overrides the key from the configuration. It is ignored when
// WithTransport is used, since that transport brings its own signer.
func WithSigner(signer types.Signer) Option {
	return func(c *Client) {
		c.signer = signer
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithSink(sink types.NotificationSink) Option {
	return func(c *Client) {
		c.sink = sink
	}
}

func WithMetrics(registry *metrics.Registry) Option {
	return func(c *Client) {
		c.metrics = registry
	}
}

// WithSession replaces the client's session, e.g. to share one account
// between several clients.
func WithSession(session *ledgersync.Session) Option {
	return func(c *Client) {
		if session != nil {
			c.session = session
		}
	}
}

func (c *Client) Session() *ledgersync.Session {
	return c.session
}

func (c *Client) Config() config.Config {
	return c.cfg
}

// Address returns the connected account, or the zero address when disconnected.
func (c *Client) Address() common.Address {
	addr, _ := c.session.CurrentAddress()
	return addr
}

// Connect binds every mirror to addr. Writes still need a signer for that account.
func (c *Client) Connect(addr common.Address) {
	c.session.Connect(addr)
}

func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// TxLink returns the explorer URL for hash.
func (c *Client) TxLink(hash common.Hash) string {
	return c.Vault.TxLink(hash)
}

// RefetchAll refreshes every enabled query of every mirror concurrently.
func (c *Client) RefetchAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Vault.RefetchAll(ctx) })
	g.Go(func() error { return c.ElementalGame.RefetchAll(ctx) })
	g.Go(func() error { return c.PredictionMarket.RefetchAll(ctx) })
	g.Go(func() error { return c.Quests.RefetchAll(ctx) })
	return g.Wait()
}

// Close stops every mirror and the dialed transport, in reverse order of creation.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
