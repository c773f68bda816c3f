package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/holdings/internal/blob/s3"
	"github.com/alanyoungcy/holdings/internal/server"
	"github.com/alanyoungcy/holdings/internal/server/handler"
	"github.com/alanyoungcy/holdings/internal/server/ws"
	"github.com/alanyoungcy/holdings/internal/service"
)

// rebuildPageSize is the number of positions fetched per page by the rebuild
// and export modes.
const rebuildPageSize = 500

// ServeMode runs the HTTP API and the WebSocket hub until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger.With(slog.String("mode", "serve"))
	lockOpts := service.LockOptions{TTL: a.cfg.LockTTL(), Wait: a.cfg.LockWait()}

	prices := service.NewPriceService(deps.PriceCache, deps.PriceStore, logger)
	positions := service.NewPositionService(
		deps.PositionStore, deps.AssetStore, deps.EntryStore, prices,
		a.cfg.Ledger.SummaryConcurrency, logger,
	)
	entries := service.NewEntryService(
		deps.PositionStore, deps.AssetStore, deps.EntryStore,
		deps.LockManager, lockOpts,
		deps.SignalBus, deps.AuditStore, deps.Notifier, logger,
	)
	transfers := service.NewTransferService(
		deps.PositionStore, deps.AssetStore, deps.EntryStore,
		deps.LockManager, lockOpts, a.cfg.RateTolerance(),
		deps.SignalBus, deps.AuditStore, deps.Notifier, logger,
	)

	hub := ws.NewHub(deps.SignalBus, logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})

	checks := map[string]handler.Pinger{"postgres": deps.Pool}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(checks, logger),
		Positions: handler.NewPositionHandler(positions, logger),
		Entries:   handler.NewEntryHandler(entries, logger),
		Transfers: handler.NewTransferHandler(transfers, logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, logger),
	}, hub, deps.RateLimiter, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve: ws hub: %w", err)
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// RebuildMode recomputes every cached position balance from its ledger and
// exits.
func (a *App) RebuildMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger.With(slog.String("mode", "rebuild"))
	positions := service.NewPositionService(
		deps.PositionStore, deps.AssetStore, deps.EntryStore, nil,
		a.cfg.Ledger.SummaryConcurrency, logger,
	)

	start := time.Now()
	n, err := positions.Rebuild(ctx, rebuildPageSize)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	if err := deps.AuditStore.Log(ctx, "rebuild.completed", map[string]any{
		"positions":  n,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}); err != nil {
		logger.WarnContext(ctx, "rebuild: audit log failed", slog.String("error", err.Error()))
	}
	return nil
}

// ExportMode writes every changed position ledger to object storage and
// exits.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger.With(slog.String("mode", "export"))
	exporter := s3blob.NewExporter(
		deps.BlobWriter, deps.BlobReader,
		deps.PositionStore, deps.EntryStore, deps.AuditStore,
		s3blob.ExportConfig{
			Prefix:             a.cfg.Export.Prefix,
			MultipartThreshold: a.cfg.Export.MultipartThreshold,
			Concurrency:        a.cfg.Export.Concurrency,
			PageSize:           rebuildPageSize,
		},
		logger,
	)

	if _, err := exporter.ExportAll(ctx); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
