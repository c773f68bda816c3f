package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	s3blob "github.com/alanyoungcy/holdings/internal/blob/s3"
	"github.com/alanyoungcy/holdings/internal/cache/redis"
	"github.com/alanyoungcy/holdings/internal/config"
	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/notify"
	"github.com/alanyoungcy/holdings/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Connectivity, probed by the health endpoint.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	// Stores
	PositionStore domain.PositionStore
	AssetStore    domain.AssetStore
	EntryStore    domain.EntryStore
	PriceStore    domain.PriceStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that coordinate writers or stream events.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "export"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode reads the ledger) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Pool = pool
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.AssetStore = postgres.NewAssetStore(pool)
	deps.EntryStore = postgres.NewEntryStore(pool)
	deps.PriceStore = postgres.NewPriceStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	if err := seedAssets(ctx, deps.AssetStore, cfg.Assets); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Ledger.PriceCacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(cfg.Mode) {
		bucket, err := s3blob.NewBucket(ctx, s3blob.BucketConfig{
			Endpoint:          cfg.S3.Endpoint,
			Region:            cfg.S3.Region,
			Bucket:            cfg.S3.Bucket,
			AccessKey:         cfg.S3.AccessKey,
			SecretKey:         cfg.S3.SecretKey,
			UseSSL:            cfg.S3.UseSSL,
			ForcePathStyle:    cfg.S3.ForcePathStyle,
			UploadConcurrency: cfg.Export.Concurrency,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := bucket.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = bucket
		deps.BlobReader = bucket
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// seedAssets upserts the configured asset catalog.
func seedAssets(ctx context.Context, store domain.AssetStore, assets []config.AssetConfig) error {
	for _, a := range assets {
		if err := store.Upsert(ctx, domain.Asset{
			ID:     a.ID,
			Symbol: a.Symbol,
			Name:   a.Name,
			Kind:   domain.AssetKind(a.Kind),
		}); err != nil {
			return fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
	}
	return nil
}
