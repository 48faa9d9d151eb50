package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// Service is the job registry: it owns creation, queries and every status
// transition of scheduled jobs. Nothing else mutates job rows.
type Service struct {
	store *storage.Store
	now   func() time.Time
	log   logx.Logger
}

func New(store *storage.Store, log logx.Logger) *Service {
	return &Service{store: store, now: time.Now, log: log}
}

// WithClock overrides the clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create persists a new job in scheduled state under a fresh opaque id.
func (s *Service) Create(ctx context.Context, d Draft) (Job, error) {
	if strings.TrimSpace(d.ImageURL) == "" {
		return Job{}, fmt.Errorf("jobs: draft has no image url")
	}
	j := storage.Job{
		ID:              uuid.NewString(),
		UserID:          d.UserID,
		ImageURL:        d.ImageURL,
		Caption:         d.Caption,
		ScheduledAt:     d.ScheduledAt,
		CreatedAt:       s.now(),
		Status:          StatusScheduled,
		OriginChatID:    d.OriginChatID,
		OriginMessageID: d.OriginMessageID,
	}
	if err := s.store.InsertJob(ctx, j); err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	s.log.Info("job created",
		logx.String("job", j.ID),
		logx.Int64("user_id", j.UserID),
		logx.Time("scheduled_at", j.ScheduledAt))
	return j, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListByUser returns the user's jobs ordered by scheduled instant ascending.
// An empty status matches all statuses.
func (s *Service) ListByUser(ctx context.Context, userID int64, status Status) ([]Job, error) {
	return s.store.ListJobsByUser(ctx, userID, status)
}

// Cancel moves a still-scheduled job to cancelled on behalf of its owner.
// Once a job is claimed its fate is decided by the publishing pass and
// cancellation fails with ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, jobID string, requestingUserID int64) error {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.UserID != requestingUserID {
		return ErrNotOwner
	}
	ok, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, j.Status)
	}
	s.log.Info("job cancelled", logx.String("job", jobID), logx.Int64("user_id", requestingUserID))
	return nil
}

// Resolve records the terminal outcome of a claimed job.
func (s *Service) Resolve(ctx context.Context, jobID string, out Outcome) error {
	hasMedia := strings.TrimSpace(out.MediaID) != ""
	hasErr := strings.TrimSpace(out.ErrorDetail) != ""
	if hasMedia == hasErr {
		return ErrBadOutcome
	}

	status := StatusPublished
	if hasErr {
		status = StatusFailed
	}
	ok, err := s.store.ResolveJob(ctx, jobID, status, out.MediaID, out.ErrorDetail)
	if err != nil {
		return fmt.Errorf("resolve job: %w", err)
	}
	if !ok {
		// The row either doesn't exist or isn't claimed; disambiguate for the caller.
		if _, gerr := s.store.GetJob(ctx, jobID); gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: job %s is not claimed", ErrInvalidTransition, jobID)
	}
	if status == StatusPublished {
		s.log.Info("job published", logx.String("job", jobID), logx.String("media_id", out.MediaID))
	} else {
		s.log.Warn("job failed", logx.String("job", jobID), logx.String("detail", out.ErrorDetail))
	}
	return nil
}

// ClaimDue atomically claims every job due at now, oldest first.
//
// Each candidate is claimed with a conditional update; candidates already
// claimed by a concurrent pass lose the conditional write and are skipped.
// This is the sole mechanism preventing duplicate publish attempts.
func (s *Service) ClaimDue(ctx context.Context, now time.Time) ([]Job, error) {
	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	var claimed []Job
	for _, j := range due {
		ok, err := s.store.ClaimJob(ctx, j.ID, now)
		if err != nil {
			return claimed, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
		if !ok {
			s.log.Debug("claim race lost", logx.String("job", j.ID))
			continue
		}
		j.Status = StatusClaimed
		j.ClaimedAt = now
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// ReleaseStaleClaims returns jobs stuck in claimed for longer than threshold
// to the scheduled pool. Run at startup: a claim that old means the process
// died between claiming and resolving, and re-running the publish is the
// price of forward progress (the platform may see a duplicate attempt).
func (s *Service) ReleaseStaleClaims(ctx context.Context, now time.Time, threshold time.Duration) (int64, error) {
	n, err := s.store.ReleaseStaleClaims(ctx, now.Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	if n > 0 {
		s.log.Warn("stale claims released", logx.Int64("count", n), logx.Duration("threshold", threshold))
	}
	return n, nil
}
