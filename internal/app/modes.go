package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/amby/internal/crypto"
	"github.com/alanyoungcy/amby/internal/events"
	"github.com/alanyoungcy/amby/internal/pipeline"
	"github.com/alanyoungcy/amby/internal/server"
	"github.com/alanyoungcy/amby/internal/server/handler"
	"github.com/alanyoungcy/amby/internal/server/ws"
	"github.com/alanyoungcy/amby/internal/service"
)

const gaugeInterval = 30 * time.Second

// ServerMode serves the HTTP API, the WebSocket hub and event delivery.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.runCore(ctx, g, deps, nil)
	a.runServer(ctx, g, deps)
	return wait(g)
}

// ArchiveMode runs only the snapshot schedule and event delivery. It is
// meant for a sidecar that shares a postgres ledger with a server.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "archive mode")
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires archive.enabled")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.runCore(ctx, g, deps, a.archiveJob(deps))
	return wait(g)
}

// FullMode runs everything in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "full mode")
	g, ctx := errgroup.WithContext(ctx)
	var job *pipeline.Archiver
	if a.cfg.Archives() {
		job = a.archiveJob(deps)
	}
	a.runCore(ctx, g, deps, job)
	a.runServer(ctx, g, deps)
	return wait(g)
}

func (a *App) archiveJob(deps *Dependencies) *pipeline.Archiver {
	if deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, deps.Metrics, a.logger)
}

// runCore starts event delivery and the background pipeline.
func (a *App) runCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, archiver *pipeline.Archiver) {
	g.Go(func() error { return deps.Dispatcher.Run(ctx) })

	orch := pipeline.NewOrchestrator(archiver, a.cfg.Archive.Cron, deps.Engine, deps.Metrics, gaugeInterval, a.logger)
	g.Go(func() error { return orch.Run(ctx) })
}

func (a *App) runServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	cfg := a.cfg
	markets := service.NewMarketService(deps.Engine, deps.Cache, a.logger)
	transfers := service.NewTransferService(deps.Engine, cfg.Transfer.Asset, a.logger)
	auth := crypto.NewTransferAuth(cfg.Transfer.HMACSecret, cfg.Transfer.MaxSkew.Duration)
	if !auth.Enabled() {
		a.logger.WarnContext(ctx, "transfer signature verification disabled")
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Status:    handler.NewStatusHandler(cfg.Mode, cfg.Transfer.Asset, deps.Engine),
		Markets:   handler.NewMarketHandler(markets, a.logger),
		Transfers: handler.NewTransferHandler(transfers, auth, a.logger),
	}
	if deps.Blobs != nil {
		handlers.Snapshots = handler.NewSnapshotHandler(deps.Blobs, deps.Archiver, deps.Archiver.Prefix(), a.logger)
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{Channels: events.Channels, Mode: cfg.Mode})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow.Duration,
		Limiter:     deps.Limiter,
		Observer:    deps.Metrics,
		MetricsPath: cfg.Server.MetricsPath,
	}, handlers, hub, a.logger)
	g.Go(func() error { return srv.Run(ctx) })
}

// wait treats cancellation as a clean exit.
func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}
