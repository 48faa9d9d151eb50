package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"postbot/internal/services/jobs"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

func newTestServices(t *testing.T, now time.Time) (*Service, *jobs.Service, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clock := func() time.Time { return now }
	reg := jobs.New(st, logx.Nop()).WithClock(clock)
	svc := New(st, reg, logx.Nop()).WithClock(clock)
	return svc, reg, st
}

func TestStepOrderEnforced(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	// No session yet: every step fails with not-found.
	if err := svc.RecordDate(ctx, 1, now.AddDate(0, 0, 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("RecordDate without session err = %v, want ErrNotFound", err)
	}

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatalf("StartOrReplace: %v", err)
	}

	// Time before date is out of order, and the session is unchanged.
	if err := svc.RecordTime(ctx, 1, 9, 0); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("RecordTime before date err = %v, want ErrInvalidStep", err)
	}
	sess, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Date != nil || sess.Hour != nil || sess.Minute != nil {
		t.Fatalf("session mutated by rejected step: %+v", sess)
	}

	// Finalize before the draft is complete is equally out of order.
	if _, err := svc.AttachPayloadAndFinalize(ctx, 1, "https://example/img.jpg", "x", 1, 1); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("finalize incomplete err = %v, want ErrInvalidStep", err)
	}
}

func TestDateValidation(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if err := svc.RecordDate(ctx, 1, now.AddDate(0, 0, -1)); !errors.Is(err, ErrPastDate) {
		t.Fatalf("yesterday err = %v, want ErrPastDate", err)
	}
	// Today is fine: the time step guards against past hours.
	if err := svc.RecordDate(ctx, 1, now); err != nil {
		t.Fatalf("today: %v", err)
	}
}

func TestTimeValidation(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordDate(ctx, 1, now); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		hour    int
		minute  int
		wantErr error
	}{
		{name: "hour out of range", hour: 24, minute: 0, wantErr: ErrInvalidTime},
		{name: "minute out of range", hour: 10, minute: 60, wantErr: ErrInvalidTime},
		{name: "today past hour", hour: 9, minute: 0, wantErr: ErrPastTime},
		{name: "today same minute", hour: 12, minute: 0, wantErr: ErrPastTime},
		{name: "today future hour", hour: 18, minute: 30},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RecordTime(ctx, 1, tt.hour, tt.minute)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("RecordTime: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordTime err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFinalizeCreatesJobAndClearsSession(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	tomorrow := now.AddDate(0, 0, 1)
	if _, err := svc.StartOrReplace(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordDate(ctx, 42, tomorrow); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordTime(ctx, 42, 9, 0); err != nil {
		t.Fatal(err)
	}

	job, err := svc.AttachPayloadAndFinalize(ctx, 42, "https://example/img.jpg", "hello", 42, 7)
	if err != nil {
		t.Fatalf("AttachPayloadAndFinalize: %v", err)
	}
	if job.Status != jobs.StatusScheduled {
		t.Fatalf("Status = %s, want scheduled", job.Status)
	}
	want := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, now.Location())
	if !job.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", job.ScheduledAt, want)
	}
	if job.ImageURL != "https://example/img.jpg" || job.Caption != "hello" {
		t.Fatalf("payload mismatch: %+v", job)
	}

	if _, err := svc.Get(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session still present after finalize: %v", err)
	}
}

type failingCreator struct{}

func (failingCreator) Create(ctx context.Context, d jobs.Draft) (jobs.Job, error) {
	return jobs.Job{}, errors.New("registry down")
}

func TestFinalizeFailureKeepsSession(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, st := newTestServices(t, now)
	ctx := context.Background()

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordDate(ctx, 1, now.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordTime(ctx, 1, 9, 0); err != nil {
		t.Fatal(err)
	}

	broken := New(st, failingCreator{}, logx.Nop()).WithClock(func() time.Time { return now })
	if _, err := broken.AttachPayloadAndFinalize(ctx, 1, "https://example/img.jpg", "x", 1, 1); err == nil {
		t.Fatal("expected creation error")
	}

	// The user can retry the final step without repeating date/time selection.
	sess, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("session lost after failed finalize: %v", err)
	}
	if !Complete(sess) {
		t.Fatalf("session incomplete after failed finalize: %+v", sess)
	}
}

func TestStartOrReplaceDiscardsDraft(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordDate(ctx, 1, now.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Date != nil {
		t.Fatalf("old draft survived replace: %+v", sess)
	}
}

func TestCancelIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	svc, _, _ := newTestServices(t, now)
	ctx := context.Background()

	if err := svc.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel absent session: %v", err)
	}
	if _, err := svc.StartOrReplace(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel again: %v", err)
	}
}
