package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// SessionSweeper ends and archives sessions nobody is looking after.
type SessionSweeper interface {
	EndStaleSessions(ctx context.Context, cutoff time.Time) (models.BulkResult, error)
	ArchiveFinished(ctx context.Context, cutoff time.Time) (int, error)
}

// OutboxPurger drops delivered change rows.
type OutboxPurger interface {
	PurgeSent(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls how often the janitor runs and what it considers old.
type Config struct {
	Schedule     string        `yaml:"schedule"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	ArchiveAfter time.Duration `yaml:"archive_after"`
	PurgeAfter   time.Duration `yaml:"purge_after"`
}

// DefaultConfig sweeps every quarter hour.
func DefaultConfig() Config {
	return Config{
		Schedule:     "@every 15m",
		StaleAfter:   12 * time.Hour,
		ArchiveAfter: 7 * 24 * time.Hour,
		PurgeAfter:   24 * time.Hour,
	}
}

// Report is the outcome of one sweep.
type Report struct {
	Ended    int
	Failed   int
	Archived int
	Purged   int64
}

type Janitor struct {
	sessions SessionSweeper
	outbox   OutboxPurger
	clock    clockwork.Clock
	cfg      Config
}

// New rejects schedules cron cannot parse.
func New(sessions SessionSweeper, outbox OutboxPurger, clock clockwork.Clock, cfg Config) (*Janitor, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", cfg.Schedule, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{sessions: sessions, outbox: outbox, clock: clock, cfg: cfg}, nil
}

// Run sweeps on the configured schedule until ctx is cancelled. An in-progress sweep is
// allowed to finish before Run returns.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.cfg.Schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("janitor sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}

	log.Info().Str("schedule", j.cfg.Schedule).Msg("janitor started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("janitor stopped")
	return nil
}

// Sweep runs every cleanup task once. Tasks run concurrently; the first error is returned
// after all of them have finished.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	now := j.clock.Now().UTC()
	var report Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := j.sessions.EndStaleSessions(gctx, now.Add(-j.cfg.StaleAfter))
		if err != nil {
			return err
		}
		report.Ended, report.Failed = result.Succeeded, result.Failed
		return nil
	})
	g.Go(func() error {
		n, err := j.sessions.ArchiveFinished(gctx, now.Add(-j.cfg.ArchiveAfter))
		if err != nil {
			return err
		}
		report.Archived = n
		return nil
	})
	if j.outbox != nil {
		g.Go(func() error {
			n, err := j.outbox.PurgeSent(gctx, now.Add(-j.cfg.PurgeAfter))
			if err != nil {
				return fmt.Errorf("failed to purge outbox: %w", err)
			}
			report.Purged = n
			return nil
		})
	}
	err := g.Wait()

	metrics.RecordSessionsSwept(report.Ended)
	log.Info().
		Int("ended", report.Ended).
		Int("failed", report.Failed).
		Int("archived", report.Archived).
		Int64("purged", report.Purged).
		Msg("janitor sweep complete")
	return report, err
}
