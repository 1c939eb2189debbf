package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// MarketCounter reads the number of markets created.
type MarketCounter interface {
	MarketCount(ctx context.Context) (uint64, error)
}

// GaugeSetter receives the refreshed market count.
type GaugeSetter interface {
	SetMarkets(n uint64)
}

// Orchestrator runs every background job until the context ends.
type Orchestrator struct {
	archiver    *Archiver
	archiveCron string
	counter     MarketCounter
	gauges      GaugeSetter
	interval    time.Duration
	logger      *slog.Logger
}

// NewOrchestrator wires the jobs. archiver may be nil when archiving is
// disabled, and gauges may be nil when metrics are off.
func NewOrchestrator(archiver *Archiver, archiveCron string, counter MarketCounter, gauges GaugeSetter, interval time.Duration, logger *slog.Logger) *Orchestrator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Orchestrator{
		archiver:    archiver,
		archiveCron: archiveCron,
		counter:     counter,
		gauges:      gauges,
		interval:    interval,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run blocks until ctx is cancelled or a job fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.archiver != nil {
		g.Go(func() error { return ignoreCancel(o.archiver.RunCron(ctx, o.archiveCron)) })
	}
	if o.gauges != nil && o.counter != nil {
		g.Go(func() error { return ignoreCancel(o.refreshGauges(ctx)) })
	}
	return g.Wait()
}

func (o *Orchestrator) refreshGauges(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		if n, err := o.counter.MarketCount(ctx); err != nil {
			o.logger.WarnContext(ctx, "market count failed", slog.String("error", err.Error()))
		} else {
			o.gauges.SetMarkets(n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
