// Package config defines the top-level configuration for the holdings
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HOLDINGS_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Export   ExportConfig   `toml:"export"`
	Assets   []AssetConfig  `toml:"assets"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LedgerConfig tunes the write path and the valuation read path.
type LedgerConfig struct {
	LockTTL  duration `toml:"lock_ttl"`
	LockWait duration `toml:"lock_wait"`
	// ExchangeRateTolerance is the relative deviation allowed between a
	// declared exchange rate and target/source quantities. Zero disables.
	ExchangeRateTolerance decimalValue `toml:"exchange_rate_tolerance"`
	SummaryConcurrency    int          `toml:"summary_concurrency"`
	PriceCacheTTL         duration     `toml:"price_cache_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// decimalValue decodes a TOML string such as "0.01" into an exact decimal.
type decimalValue struct {
	decimal.Decimal
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *decimalValue) UnmarshalText(text []byte) error {
	v, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Decimal = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d decimalValue) MarshalText() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	APIKey       string   `toml:"api_key"`
	CORSOrigins  []string `toml:"cors_origins"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ExportConfig controls the JSONL ledger export written to S3.
type ExportConfig struct {
	Prefix string `toml:"prefix"`
	// MultipartThreshold is the body size in bytes above which uploads use
	// the multipart manager.
	MultipartThreshold int64 `toml:"multipart_threshold"`
	Concurrency        int   `toml:"concurrency"`
}

// AssetConfig seeds one asset into the catalog at startup.
type AssetConfig struct {
	ID     string `toml:"id"`
	Symbol string `toml:"symbol"`
	Name   string `toml:"name"`
	Kind   string `toml:"kind"`
}

// validAssetKinds mirrors domain.AssetKind.
var validAssetKinds = map[string]bool{
	"stock":    true,
	"etf":      true,
	"crypto":   true,
	"fund":     true,
	"currency": true,
}

// Defaults returns a Config populated with reasonable default values.
// Every field can be overridden by a HOLDINGS_* environment variable.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "holdings",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "holdings",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "holdings-exports",
			ForcePathStyle: true,
		},
		Ledger: LedgerConfig{
			LockTTL:               duration{10 * time.Second},
			LockWait:              duration{2 * time.Second},
			ExchangeRateTolerance: decimalValue{decimal.RequireFromString("0.01")},
			SummaryConcurrency:    8,
			PriceCacheTTL:         duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{30 * time.Second},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"outflow_rejected", "transfer_recorded", "exchange_recorded"},
		},
		Export: ExportConfig{
			Prefix:             "ledger",
			MultipartThreshold: 8 << 20,
			Concurrency:        4,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"rebuild": true,
	"export":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, rebuild, export)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Ledger
	if c.Ledger.LockTTL.Duration <= 0 {
		errs = append(errs, "ledger: lock_ttl must be > 0")
	}
	if c.Ledger.LockWait.Duration < 0 {
		errs = append(errs, "ledger: lock_wait must be >= 0")
	}
	if c.Ledger.ExchangeRateTolerance.IsNegative() {
		errs = append(errs, "ledger: exchange_rate_tolerance must be >= 0")
	}
	if c.Ledger.SummaryConcurrency < 1 {
		errs = append(errs, "ledger: summary_concurrency must be >= 1")
	}

	// Server
	if strings.EqualFold(c.Mode, "serve") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// S3 is only needed by the export mode.
	if strings.EqualFold(c.Mode, "export") {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Assets
	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: id must not be empty", i))
			continue
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("assets[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
		if !validAssetKinds[a.Kind] {
			errs = append(errs, fmt.Sprintf("assets[%d]: unknown kind %q", i, a.Kind))
		}
	}

	// Notify: a telegram token without a chat is a misconfiguration.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LockTTL returns the per-position lock lifetime.
func (c *Config) LockTTL() time.Duration { return c.Ledger.LockTTL.Duration }

// LockWait returns how long a writer retries a held position lock.
func (c *Config) LockWait() time.Duration { return c.Ledger.LockWait.Duration }

// RateTolerance returns the configured exchange-rate tolerance.
func (c *Config) RateTolerance() decimal.Decimal { return c.Ledger.ExchangeRateTolerance.Decimal }
