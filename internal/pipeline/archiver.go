// Package pipeline runs the background jobs of the ledger service: the
// snapshot archive schedule and periodic gauge refresh.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/amby/internal/domain"
)

// ArchiveObserver records archive runs. metrics.Ledger satisfies it.
type ArchiveObserver interface {
	ObserveArchive(err error)
}

// Archiver triggers ledger snapshots on a cron schedule.
type Archiver struct {
	blob    domain.Archiver
	obs     ArchiveObserver
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewArchiver creates an Archiver. obs may be nil.
func NewArchiver(blob domain.Archiver, obs ArchiveObserver, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:    blob,
		obs:     obs,
		logger:  logger.With(slog.String("component", "archive_job")),
		now:     time.Now,
		timeout: 10 * time.Minute,
	}
}

// Run performs one snapshot.
func (a *Archiver) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := a.now()
	path, n, err := a.blob.ArchiveLedger(ctx, started.UTC())
	if a.obs != nil {
		a.obs.ObserveArchive(err)
	}
	if err != nil {
		return fmt.Errorf("pipeline: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.String("path", path),
		slog.Int64("records", n),
		slog.Duration("took", a.now().Sub(started)),
	)
	return nil
}

// RunCron runs the archiver on a standard 5-field cron schedule until ctx
// is cancelled. Overlapping runs are skipped.
func (a *Archiver) RunCron(ctx context.Context, spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", spec, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		if err := a.Run(ctx); err != nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
	}))

	a.logger.InfoContext(ctx, "archive schedule started",
		slog.String("cron", spec),
		slog.Time("next_run", sched.Next(a.now())),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("archive schedule stopped")
	return ctx.Err()
}
