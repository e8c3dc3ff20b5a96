// Package config loads client settings from OSB_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/pkg/errors"
)

// Config is the full client configuration. Defaults target the Hedera testnet
// deployment.
type Config struct {
	RPCURL      string `env:"OSB_RPC_URL" envDefault:"https://testnet.hashio.io/api" validate:"required,url"`
	ChainID     int64  `env:"OSB_CHAIN_ID" envDefault:"296" validate:"gt=0"`
	ExplorerURL string `env:"OSB_EXPLORER_URL" envDefault:"https://hashscan.io/testnet" validate:"omitempty,url"`
	// PrivateKey is hex encoded, with or without 0x. Empty means read-only.
	PrivateKey string `env:"OSB_PRIVATE_KEY" validate:"omitempty,hexadecimal"`

	VaultAddress            string `env:"OSB_VAULT_ADDRESS" validate:"required,eth_addr"`
	ElementalGameAddress    string `env:"OSB_ELEMENTAL_GAME_ADDRESS" validate:"required,eth_addr"`
	PredictionMarketAddress string `env:"OSB_PREDICTION_MARKET_ADDRESS" validate:"required,eth_addr"`
	QuestManagerAddress     string `env:"OSB_QUEST_MANAGER_ADDRESS" validate:"required,eth_addr"`

	RateLimit float64 `env:"OSB_RPC_RATE_LIMIT" envDefault:"10" validate:"gt=0"`
	RateBurst int     `env:"OSB_RPC_RATE_BURST" envDefault:"5" validate:"gt=0"`

	ReceiptInterval time.Duration `env:"OSB_RECEIPT_INTERVAL" envDefault:"2s" validate:"gt=0"`

	VaultBalanceInterval time.Duration `env:"OSB_VAULT_BALANCE_INTERVAL" envDefault:"3s" validate:"gt=0"`
	VaultTotalInterval   time.Duration `env:"OSB_VAULT_TOTAL_INTERVAL" envDefault:"5s" validate:"gt=0"`
	WalletInterval       time.Duration `env:"OSB_WALLET_INTERVAL" envDefault:"5s" validate:"gt=0"`
	RoundInterval        time.Duration `env:"OSB_ROUND_INTERVAL" envDefault:"5s" validate:"gt=0"`
	RoundUserInterval    time.Duration `env:"OSB_ROUND_USER_INTERVAL" envDefault:"3s" validate:"gt=0"`
	MarketInterval       time.Duration `env:"OSB_MARKET_INTERVAL" envDefault:"5s" validate:"gt=0"`
	MarketUserInterval   time.Duration `env:"OSB_MARKET_USER_INTERVAL" envDefault:"3s" validate:"gt=0"`
	QuestInterval        time.Duration `env:"OSB_QUEST_INTERVAL" envDefault:"5s" validate:"gt=0"`
	MaxWatchedMarkets    int           `env:"OSB_MAX_WATCHED_MARKETS" envDefault:"50" validate:"gt=0"`

	VaultCascade  []time.Duration `env:"OSB_VAULT_CASCADE" envDefault:"1s,2s,4s" envSeparator:"," validate:"min=1,dive,gte=0"`
	GameCascade   []time.Duration `env:"OSB_GAME_CASCADE" envDefault:"1s,2s,3s" envSeparator:"," validate:"min=1,dive,gte=0"`
	MarketCascade []time.Duration `env:"OSB_MARKET_CASCADE" envDefault:"0s,2s,4s" envSeparator:"," validate:"min=1,dive,gte=0"`

	LogLevel    string `env:"OSB_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `env:"OSB_LOG_FORMAT" envDefault:"console" validate:"oneof=console json"`
	MetricsAddr string `env:"OSB_METRICS_ADDR"`
}

// Default returns the configuration with every default applied and the
// deployed contract addresses filled in.
func Default() Config {
	cfg, _ := parse(map[string]string{})
	return cfg
}

// Load reads the process environment and validates the result.
func Load() (Config, error) {
	return parse(nil)
}

// LoadFrom reads vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(vars)
}

func parse(vars map[string]string) (Config, error) {
	cfg := Config{
		VaultAddress:            contracts.VaultAddress,
		ElementalGameAddress:    contracts.ElementalGameAddress,
		PredictionMarketAddress: contracts.PredictionMarketAddress,
		QuestManagerAddress:     contracts.QuestManagerAddress,
	}
	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	cfg.PrivateKey = strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration with validator tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// ReadOnly reports whether no signing key is configured.
func (c Config) ReadOnly() bool {
	return c.PrivateKey == ""
}

// Addresses returns the four contract addresses.
func (c Config) Addresses() (vault, game, market, quests common.Address) {
	return common.HexToAddress(c.VaultAddress),
		common.HexToAddress(c.ElementalGameAddress),
		common.HexToAddress(c.PredictionMarketAddress),
		common.HexToAddress(c.QuestManagerAddress)
}
