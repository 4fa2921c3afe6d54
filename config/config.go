package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration. YAML is the base layer; environment
// variables (optionally from a .env file) override it.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Feed    FeedConfig    `yaml:"feed"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controls the capital-deployment policy.
type EngineConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds" envconfig:"ENGINE_INTERVAL_SECONDS"`
	MaxEventFraction    float64 `yaml:"max_event_fraction" envconfig:"MAX_EVENT_FRACTION"`
	MaxOrderCents       int     `yaml:"max_order_cents" envconfig:"MAX_ORDER_CENTS"`
	ImproveAfterMinutes int     `yaml:"improve_after_minutes" envconfig:"IMPROVE_AFTER_MINUTES"`
	CancelAfterMinutes  int     `yaml:"cancel_after_minutes" envconfig:"CANCEL_AFTER_MINUTES"`
	ImproveStepCents    int     `yaml:"improve_step_cents" envconfig:"IMPROVE_STEP_CENTS"`
	ExecuteAfterHour    int     `yaml:"execute_after_hour" envconfig:"EXECUTE_AFTER_HOUR"`
	RolloverHour        int     `yaml:"rollover_hour" envconfig:"ROLLOVER_HOUR"`
	Timezone            string  `yaml:"timezone" envconfig:"EXCHANGE_TIMEZONE"`
	CallIntervalMs      int     `yaml:"call_interval_ms" envconfig:"CALL_INTERVAL_MS"`
	UnitSizeCents       int     `yaml:"unit_size_cents" envconfig:"UNIT_SIZE_CENTS"`
}

// FeedConfig controls candidate selection.
type FeedConfig struct {
	MinAskCents     int      `yaml:"min_ask_cents" envconfig:"FEED_MIN_ASK_CENTS"`
	MaxAskCents     int      `yaml:"max_ask_cents" envconfig:"FEED_MAX_ASK_CENTS"`
	MinOpenInterest int64    `yaml:"min_open_interest" envconfig:"FEED_MIN_OPEN_INTEREST"`
	MaxCandidates   int      `yaml:"max_candidates" envconfig:"FEED_MAX_CANDIDATES"`
	SeriesTickers   []string `yaml:"series_tickers" envconfig:"FEED_SERIES_TICKERS"`
}

// APIConfig holds the exchange endpoint and credentials. The private key
// never lives in YAML; only its path does.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"KALSHI_BASE_URL"`
	KeyID          string `yaml:"key_id" envconfig:"KALSHI_API_KEY_ID"`
	PrivateKeyPath string `yaml:"private_key_path" envconfig:"KALSHI_PRIVATE_KEY_PATH"`
}

// StorageConfig locates the order ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn" envconfig:"STORAGE_DSN"` // SQLite file path, or ":memory:"
}

// ServerConfig controls the operator HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" envconfig:"SERVER_ADDR"`
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // text | json
}

// Load reads the YAML file at path, then overlays environment variables.
// A .env file in the working directory is loaded first when present. An
// empty path skips the YAML layer entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: env overrides: %w", err)
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// RunInterval is how often the daemon invokes the engine.
func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// ImproveAfter is the resting age that triggers a re-price.
func (c *Config) ImproveAfter() time.Duration {
	return time.Duration(c.Engine.ImproveAfterMinutes) * time.Minute
}

// CancelAfter is the resting age that triggers cancel + blacklist.
func (c *Config) CancelAfter() time.Duration {
	return time.Duration(c.Engine.CancelAfterMinutes) * time.Minute
}

// CallInterval is the minimum spacing between exchange calls.
func (c *Config) CallInterval() time.Duration {
	return time.Duration(c.Engine.CallIntervalMs) * time.Millisecond
}

func setDefaults(cfg *Config) {
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 300
	}
	if cfg.Engine.MaxEventFraction <= 0 {
		cfg.Engine.MaxEventFraction = 0.03
	}
	if cfg.Engine.MaxOrderCents <= 0 {
		cfg.Engine.MaxOrderCents = 10_000
	}
	if cfg.Engine.ImproveAfterMinutes <= 0 {
		cfg.Engine.ImproveAfterMinutes = 60
	}
	if cfg.Engine.CancelAfterMinutes <= 0 {
		cfg.Engine.CancelAfterMinutes = 240
	}
	if cfg.Engine.ImproveStepCents <= 0 {
		cfg.Engine.ImproveStepCents = 1
	}
	if cfg.Engine.ExecuteAfterHour <= 0 {
		cfg.Engine.ExecuteAfterHour = 10
	}
	if cfg.Engine.RolloverHour <= 0 {
		cfg.Engine.RolloverHour = 4
	}
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = "America/New_York"
	}
	if cfg.Engine.CallIntervalMs <= 0 {
		cfg.Engine.CallIntervalMs = 500
	}
	if cfg.Engine.UnitSizeCents <= 0 {
		cfg.Engine.UnitSizeCents = 500
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshibot.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
