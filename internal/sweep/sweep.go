// Package sweep runs the periodic housekeeping jobs the rest of
// agentcore depends on but nothing user-facing triggers directly:
// registry garbage collection, event-store TTL pruning, and fallback
// queue redrain. It is a thin robfig/cron wrapper around those three
// calls.
package sweep

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Registry is the subset of *registry.Registry the sweeper needs.
type Registry interface {
	GC(maxAge time.Duration) int
}

// Store is the subset of *events.Store the sweeper needs.
type Store interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Writer is the subset of *writer.Writer the sweeper needs.
type Writer interface {
	Redrain(ctx context.Context) (int, error)
}

// Config holds the sweeper's dependencies and schedule.
type Config struct {
	Registry Registry
	Store    Store
	Writer   Writer
	Logger   *slog.Logger

	// GCMaxAge is REGISTRY_GC_MAX_AGE_H.
	GCMaxAge time.Duration
	// EventsTTL is MESSAGE_EVENTS_TTL_S; zero disables pruning.
	EventsTTL time.Duration
}

// Scheduler runs registry GC, event TTL pruning, and fallback-queue
// redrain on independent cron schedules.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
	cron   *cronlib.Cron
}

// New builds a Scheduler. Call Start to begin running jobs.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		cron:   cronlib.New(),
	}
}

// Start registers and starts every sweep job. ctx governs job execution
// deadlines, not the scheduler's own lifetime — call Stop to halt it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Registry != nil {
		if _, err := s.cron.AddFunc("@every 5m", func() { s.runGC(ctx) }); err != nil {
			return err
		}
	}
	if s.cfg.Writer != nil {
		if _, err := s.cron.AddFunc("@every 1m", func() { s.runRedrain(ctx) }); err != nil {
			return err
		}
	}
	if s.cfg.Store != nil && s.cfg.EventsTTL > 0 {
		if _, err := s.cron.AddFunc("@every 15m", func() { s.runPrune(ctx) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("sweep scheduler started")
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("sweep scheduler stopped")
}

func (s *Scheduler) runGC(ctx context.Context) {
	maxAge := s.cfg.GCMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	evicted := s.cfg.Registry.GC(maxAge)
	if evicted > 0 {
		s.logger.Info("sweep: registry gc ran", "evicted", evicted)
	}
}

func (s *Scheduler) runRedrain(ctx context.Context) {
	n, err := s.cfg.Writer.Redrain(ctx)
	if err != nil {
		s.logger.Warn("sweep: fallback redrain incomplete", "drained", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("sweep: fallback redrain ran", "drained", n)
	}
}

func (s *Scheduler) runPrune(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.EventsTTL)
	n, err := s.cfg.Store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("sweep: event ttl prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("sweep: event ttl prune ran", "deleted", n)
	}
}
