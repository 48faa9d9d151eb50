// Package sweeper purges stale interactive sessions and old terminal jobs on
// a fixed interval. Both purges are idempotent; a failed pass is logged and
// retried on the next tick.
package sweeper

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

type Config struct {
	// Interval between sweeps. Defaults to an hour.
	Interval time.Duration
	// SessionWindow is how long an untouched session survives. Defaults to 7 days.
	SessionWindow time.Duration
	// JobWindow is how long published, failed and cancelled jobs are kept.
	// Defaults to 30 days. Scheduled and claimed jobs are never swept.
	JobWindow time.Duration
}

func (c Config) interval() time.Duration {
	if c.Interval <= 0 {
		return time.Hour
	}
	return c.Interval
}

func (c Config) sessionWindow() time.Duration {
	if c.SessionWindow <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.SessionWindow
}

func (c Config) jobWindow() time.Duration {
	if c.JobWindow <= 0 {
		return 30 * 24 * time.Hour
	}
	return c.JobWindow
}

type Service struct {
	cfg   Config
	store *storage.Store
	log   logx.Logger
	now   func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, store *storage.Store, log logx.Logger) *Service {
	return &Service{cfg: cfg, store: store, log: log, now: time.Now}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.interval())
	if _, err := c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in sweep",
					logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("register sweep tick: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("service started",
		logx.Duration("interval", s.cfg.interval()),
		logx.Duration("session_window", s.cfg.sessionWindow()),
		logx.Duration("job_window", s.cfg.jobWindow()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("service stopped")
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep and returns the purge counts.
func (s *Service) RunOnce(ctx context.Context) (sessions, jobs int64) {
	now := s.now()

	sessions, err := s.store.DeleteSessionsIdleBefore(ctx, now.Add(-s.cfg.sessionWindow()))
	if err != nil {
		s.log.Warn("session sweep failed", logx.Err(err))
	} else if sessions > 0 {
		s.log.Info("purged idle sessions", logx.Int64("count", sessions))
	}

	jobs, err = s.store.DeleteTerminalJobsBefore(ctx, now.Add(-s.cfg.jobWindow()))
	if err != nil {
		s.log.Warn("job sweep failed", logx.Err(err))
	} else if jobs > 0 {
		s.log.Info("purged old jobs", logx.Int64("count", jobs))
	}
	return sessions, jobs
}
