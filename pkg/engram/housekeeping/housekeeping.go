// Package housekeeping runs the engine's background maintenance on cron
// schedules: sweeping expired entries, pruning the access log to its
// retention window and kicking periodic full re-indexes. Jobs are guarded
// against overlapping runs, so a slow sweep cannot pile up behind itself.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/engramd/engram/pkg/engram/indexer"
	"github.com/engramd/engram/pkg/engram/memory"
)

// Options configures the housekeeping service.
type Options struct {
	// ExpirySweepSchedule removes entries past their expires_at.
	ExpirySweepSchedule string

	// PruneSchedule trims access-log rows older than the retention window.
	PruneSchedule          string
	AccessLogRetentionDays int

	// ReindexSchedule runs a full file re-index. Ignored without an indexer.
	ReindexSchedule string

	Logger *slog.Logger
}

// Service owns the cron scheduler and the registered maintenance jobs.
type Service struct {
	cron    *cron.Cron
	store   *memory.Store
	indexer *indexer.Indexer
	logger  *slog.Logger

	retention time.Duration

	// running prevents duplicate runs when a schedule fires while the
	// previous run is still active.
	mu      sync.Mutex
	running map[string]bool
}

// New creates the service and registers its jobs. The indexer may be nil
// when file indexing is disabled.
func New(store *memory.Store, ix *indexer.Indexer, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retentionDays := opts.AccessLogRetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}

	s := &Service{
		cron:      cron.New(),
		store:     store,
		indexer:   ix,
		logger:    logger.With("component", "housekeeping"),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		running:   make(map[string]bool),
	}

	if opts.ExpirySweepSchedule != "" {
		if err := s.register(opts.ExpirySweepSchedule, "expiry-sweep", s.sweepExpired); err != nil {
			return nil, err
		}
	}
	if opts.PruneSchedule != "" {
		if err := s.register(opts.PruneSchedule, "access-log-prune", s.pruneAccessLog); err != nil {
			return nil, err
		}
	}
	if ix != nil && opts.ReindexSchedule != "" {
		if err := s.register(opts.ReindexSchedule, "reindex", s.reindex); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("housekeeping started", "jobs", len(s.cron.Entries()))
}

// Stop halts the scheduler and waits for in-flight jobs.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("housekeeping stopped")
}

// register adds a guarded job under the given cron schedule.
func (s *Service) register(schedule, name string, job func(context.Context)) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if !s.tryAcquire(name) {
			s.logger.Warn("skipping job, previous run still active", "job", name)
			return
		}
		defer s.release(name)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, schedule, err)
	}
	return nil
}

func (s *Service) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Service) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

// sweepExpired purges entries whose expires_at has passed.
func (s *Service) sweepExpired(ctx context.Context) {
	removed, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err.Error())
		return
	}
	if removed > 0 {
		s.logger.Info("expired entries removed", "count", removed)
	}
}

// pruneAccessLog trims access-log rows beyond the retention window.
func (s *Service) pruneAccessLog(ctx context.Context) {
	pruned, err := s.store.PruneAccessLog(ctx, s.retention)
	if err != nil {
		s.logger.Error("access log prune failed", "error", err.Error())
		return
	}
	if pruned > 0 {
		s.logger.Info("access log pruned", "rows", pruned, "retention", s.retention)
	}
}

// reindex runs a full pass over every watched file.
func (s *Service) reindex(ctx context.Context) {
	if err := s.indexer.ReindexAll(ctx); err != nil {
		s.logger.Error("full reindex failed", "error", err.Error())
	}
}

// RunOnce executes every registered maintenance task immediately. Used by
// `engram housekeep` for manual maintenance.
func (s *Service) RunOnce(ctx context.Context) {
	s.sweepExpired(ctx)
	s.pruneAccessLog(ctx)
	if s.indexer != nil {
		s.reindex(ctx)
	}
}
