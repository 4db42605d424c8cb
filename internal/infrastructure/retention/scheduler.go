package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPruner drops ended and idle sessions from memory.
type SessionPruner interface {
	PruneEnded() int
}

// ArchivePruner removes archived exports older than the retention window.
type ArchivePruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// Scheduler periodically evicts ended sessions and expired compliance exports.
type Scheduler struct {
	sessions  SessionPruner
	archive   ArchivePruner
	interval  time.Duration
	retention time.Duration
	logger    *zap.SugaredLogger
	stopChan  chan struct{}
}

// NewScheduler builds a scheduler. archive may be nil when the backend
// enforces retention itself.
func NewScheduler(sessions SessionPruner, archive ArchivePruner, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{
		sessions:  sessions,
		archive:   archive,
		interval:  cfg.Interval,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// RunOnce performs a single pass and returns how many sessions and exports
// were removed.
func (s *Scheduler) RunOnce(ctx context.Context) (sessions, exports int) {
	if s.sessions != nil {
		sessions = s.sessions.PruneEnded()
	}

	if s.archive != nil && s.retention > 0 {
		n, err := s.archive.Prune(ctx, s.retention)
		if err != nil {
			s.logger.Warnw("Failed to prune compliance archive", "error", err)
		}
		exports = n
	}

	if sessions > 0 || exports > 0 {
		s.logger.Infow("Retention pass completed",
			"sessions_pruned", sessions,
			"exports_pruned", exports,
		)
	}
	return sessions, exports
}
