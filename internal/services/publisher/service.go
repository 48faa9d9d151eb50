package publisher

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"postbot/internal/services/jobs"
	logx "postbot/pkg/logx"
)

func New(cfg Config, reg *jobs.Service, pub Publisher, msg Messenger, log logx.Logger) *Service {
	rps := cfg.NotifyRatePerSec
	if rps <= 0 {
		rps = 10
	}
	return &Service{
		cfg:     cfg,
		reg:     reg,
		pub:     pub,
		msg:     msg,
		log:     log,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start recovers stale claims left behind by a previous run, then begins
// ticking. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	if n, err := s.reg.ReleaseStaleClaims(ctx, s.now(), s.cfg.staleAfter()); err != nil {
		// Recovery failure is not fatal; the jobs stay claimed until the
		// next restart.
		s.log.Warn("stale claim recovery failed", logx.Err(err))
	} else if n > 0 {
		s.log.Info("recovered stale claims", logx.Int64("count", n))
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.interval())
	if _, err := c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in publish pass",
					logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.RunPass(runCtx)
	}); err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return fmt.Errorf("register publish tick: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("service started", logx.Duration("interval", s.cfg.interval()))
	return nil
}

// Stop halts the ticker and waits for an in-flight pass to finish, or for
// ctx to expire, whichever comes first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("service stopped")
	case <-ctx.Done():
		// pass finishes in background
	}
}
