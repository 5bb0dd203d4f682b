package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

// Game holds the round lifecycle tuning knobs.
type Game struct {
	WagerWindow      time.Duration `env:"ALTITUDE_WAGER_WINDOW" envDefault:"5s"`
	MaxRoundDuration time.Duration `env:"ALTITUDE_MAX_ROUND_DURATION" envDefault:"60s"`
	TickInterval     time.Duration `env:"ALTITUDE_TICK_INTERVAL" envDefault:"100ms"`
	Cooldown         time.Duration `env:"ALTITUDE_ROUND_COOLDOWN" envDefault:"3s"`

	// GrowthFactor is the per-second linear multiplier gain.
	GrowthFactor float64 `env:"ALTITUDE_GROWTH_FACTOR" envDefault:"0.01"`
	HouseEdge    float64 `env:"ALTITUDE_HOUSE_EDGE" envDefault:"0.01"`
	MaxCrash     float64 `env:"ALTITUDE_MAX_CRASH" envDefault:"100"`

	MinStake float64 `env:"ALTITUDE_MIN_STAKE" envDefault:"1"`
	MaxStake float64 `env:"ALTITUDE_MAX_STAKE" envDefault:"10000"`
}

// Rates configures the price oracle.
type Rates struct {
	SourceURL string        `env:"ALTITUDE_RATES_URL"`
	CacheTTL  time.Duration `env:"ALTITUDE_RATES_TTL" envDefault:"30s"`
	Timeout   time.Duration `env:"ALTITUDE_RATES_TIMEOUT" envDefault:"3s"`
}

// Config is the full configuration surface for the service.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	Game  Game
	Rates Rates

	// ReferenceCurrency is the currency wagers are staked in.
	ReferenceCurrency string `env:"ALTITUDE_REFERENCE_CURRENCY" envDefault:"USD"`

	// SettlementCurrencies are the currencies wagers can settle in.
	SettlementCurrencies []string `env:"ALTITUDE_SETTLEMENT_CURRENCIES" envSeparator:"," envDefault:"BTC,ETH,USDT"`
}

// Load parses configuration from the environment. A .env file in the
// working directory is honored via godotenv autoload.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Game.GrowthFactor <= 0 {
		return nil, fmt.Errorf("growth factor must be positive, got %v", cfg.Game.GrowthFactor)
	}
	if cfg.Game.HouseEdge < 0 || cfg.Game.HouseEdge >= 1 {
		return nil, fmt.Errorf("house edge must be in [0,1), got %v", cfg.Game.HouseEdge)
	}
	return cfg, nil
}

// Precision returns the settlement decimal precision for a currency.
func Precision(currency string) int32 {
	switch currency {
	case "BTC":
		return 8
	case "ETH":
		return 8
	case "USDT":
		return 2
	case "USD":
		return 2
	default:
		return 8
	}
}

// Supported reports whether currency is an accepted settlement currency.
func (c *Config) Supported(currency string) bool {
	for _, cur := range c.SettlementCurrencies {
		if cur == currency {
			return true
		}
	}
	return false
}
