package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HOLDINGS_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HOLDINGS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HOLDINGS_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HOLDINGS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HOLDINGS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HOLDINGS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HOLDINGS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HOLDINGS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HOLDINGS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HOLDINGS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HOLDINGS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HOLDINGS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HOLDINGS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HOLDINGS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HOLDINGS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HOLDINGS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HOLDINGS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HOLDINGS_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "HOLDINGS_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HOLDINGS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HOLDINGS_S3_REGION")
	setStr(&cfg.S3.Bucket, "HOLDINGS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HOLDINGS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HOLDINGS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HOLDINGS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HOLDINGS_S3_FORCE_PATH_STYLE")

	// ── Ledger ──
	setDuration(&cfg.Ledger.LockTTL, "HOLDINGS_LEDGER_LOCK_TTL")
	setDuration(&cfg.Ledger.LockWait, "HOLDINGS_LEDGER_LOCK_WAIT")
	setDecimal(&cfg.Ledger.ExchangeRateTolerance, "HOLDINGS_LEDGER_EXCHANGE_RATE_TOLERANCE")
	setInt(&cfg.Ledger.SummaryConcurrency, "HOLDINGS_LEDGER_SUMMARY_CONCURRENCY")
	setDuration(&cfg.Ledger.PriceCacheTTL, "HOLDINGS_LEDGER_PRICE_CACHE_TTL")

	// ── Server ──
	setInt(&cfg.Server.Port, "HOLDINGS_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HOLDINGS_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HOLDINGS_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ReadTimeout, "HOLDINGS_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "HOLDINGS_SERVER_WRITE_TIMEOUT")
	setInt(&cfg.Server.RateLimit, "HOLDINGS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "HOLDINGS_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HOLDINGS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HOLDINGS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HOLDINGS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HOLDINGS_NOTIFY_EVENTS")

	// ── Export ──
	setStr(&cfg.Export.Prefix, "HOLDINGS_EXPORT_PREFIX")
	setInt64(&cfg.Export.MultipartThreshold, "HOLDINGS_EXPORT_MULTIPART_THRESHOLD")
	setInt(&cfg.Export.Concurrency, "HOLDINGS_EXPORT_CONCURRENCY")

	// ── Top-level ──
	setStr(&cfg.Mode, "HOLDINGS_MODE")
	setStr(&cfg.LogLevel, "HOLDINGS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimalValue, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			dst.Decimal = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
