// Package session tracks one in-progress scheduling interaction per user,
// advancing it date -> time -> payload. The finalize step hands the
// accumulated draft to the job registry and clears the session.
package session

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/services/jobs"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// JobCreator is the slice of the job registry the session flow needs.
type JobCreator interface {
	Create(ctx context.Context, d jobs.Draft) (jobs.Job, error)
}

type Service struct {
	store *storage.Store
	jobs  JobCreator
	now   func() time.Time
	log   logx.Logger
}

func New(store *storage.Store, reg JobCreator, log logx.Logger) *Service {
	return &Service{store: store, jobs: reg, now: time.Now, log: log}
}

// WithClock overrides the clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartOrReplace opens a fresh session for the user.
//
// The session is keyed by user id, so a second /schedule while a draft is
// pending silently replaces it. That overwrite is intentional; callers that
// want to warn the user should Get() first and check for an existing draft.
func (s *Service) StartOrReplace(ctx context.Context, userID int64) (storage.Session, error) {
	sess := storage.Session{UserID: userID, LastUpdated: s.now()}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return storage.Session{}, fmt.Errorf("start session: %w", err)
	}
	s.log.Debug("session started", logx.Int64("user_id", userID))
	return sess, nil
}

// Get returns the user's session, or storage.ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, userID int64) (storage.Session, error) {
	return s.store.GetSession(ctx, userID)
}

// RecordDate stores the chosen calendar date. Dates strictly before the
// current day are rejected; today is allowed (the time step enforces that
// the composed instant still lies in the future).
func (s *Service) RecordDate(ctx context.Context, userID int64, date time.Time) error {
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(today) {
		return ErrPastDate
	}

	sess.Date = &day
	sess.LastUpdated = now
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("record date: %w", err)
	}
	return nil
}

// RecordTime stores the chosen hour and minute. It requires a date from the
// previous step and rejects a combination that, composed with that date,
// does not lie strictly in the future ("today, but a past hour").
func (s *Service) RecordTime(ctx context.Context, userID int64, hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ErrInvalidTime
	}
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if sess.Date == nil {
		return ErrInvalidStep
	}

	now := s.now()
	if !composeAt(*sess.Date, hour, minute, now.Location()).After(now) {
		return ErrPastTime
	}

	sess.Hour = &hour
	sess.Minute = &minute
	sess.LastUpdated = now
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("record time: %w", err)
	}
	return nil
}

// AttachPayloadAndFinalize creates the scheduled job from a completed session
// and clears the session. If job creation fails the session is left intact so
// the user can retry the final step without re-picking date and time.
func (s *Service) AttachPayloadAndFinalize(ctx context.Context, userID int64, imageURL, caption string, originChatID int64, originMessageID int) (jobs.Job, error) {
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return jobs.Job{}, err
	}
	if sess.Date == nil || sess.Hour == nil || sess.Minute == nil {
		return jobs.Job{}, ErrInvalidStep
	}

	now := s.now()
	at := composeAt(*sess.Date, *sess.Hour, *sess.Minute, now.Location())
	if !at.After(now) {
		return jobs.Job{}, ErrPastTime
	}

	job, err := s.jobs.Create(ctx, jobs.Draft{
		UserID:          userID,
		ImageURL:        imageURL,
		Caption:         caption,
		ScheduledAt:     at,
		OriginChatID:    originChatID,
		OriginMessageID: originMessageID,
	})
	if err != nil {
		return jobs.Job{}, err
	}

	if err := s.store.DeleteSession(ctx, userID); err != nil {
		// The job exists; losing the session cleanup is recoverable (the
		// sweeper will reap it), so don't fail the whole flow.
		s.log.Warn("session cleanup failed after job creation",
			logx.Int64("user_id", userID), logx.String("job", job.ID), logx.Err(err))
	}
	return job, nil
}

// Cancel drops the user's session. Cancelling an absent session is a no-op.
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	return s.store.DeleteSession(ctx, userID)
}

// SaveExtra updates the opaque step-state blob without touching the draft fields.
func (s *Service) SaveExtra(ctx context.Context, userID int64, extra []byte) error {
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	sess.Extra = extra
	sess.LastUpdated = s.now()
	return s.store.SaveSession(ctx, sess)
}

// Complete reports whether every step before payload attachment is done.
func Complete(sess storage.Session) bool {
	return sess.Date != nil && sess.Hour != nil && sess.Minute != nil
}

// ScheduledAt composes the draft's instant in loc. Callers must check
// Complete first.
func ScheduledAt(sess storage.Session, loc *time.Location) time.Time {
	return composeAt(*sess.Date, *sess.Hour, *sess.Minute, loc)
}

func composeAt(date time.Time, hour, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
}
