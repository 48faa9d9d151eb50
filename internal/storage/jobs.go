package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const jobColumns = `id, user_id, image_url, caption, scheduled_at, created_at, status,
	claimed_at, origin_chat_id, origin_message_id, platform_media_id, error_message`

func (s *Store) InsertJob(ctx context.Context, j Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs
		 (id, user_id, image_url, caption, scheduled_at, created_at, status, origin_chat_id, origin_message_id)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		j.ID, j.UserID, j.ImageURL, nullStr(j.Caption),
		j.ScheduledAt.UnixMilli(), j.CreatedAt.UnixMilli(), string(j.Status),
		j.OriginChatID, j.OriginMessageID,
	)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListJobsByUser returns the user's jobs ordered by scheduled instant ascending.
// An empty status matches all statuses.
func (s *Store) ListJobsByUser(ctx context.Context, userID int64, status JobStatus) ([]Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM scheduled_jobs WHERE user_id = ? ORDER BY scheduled_at ASC`,
			userID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM scheduled_jobs WHERE user_id = ? AND status = ? ORDER BY scheduled_at ASC`,
			userID, string(status))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// DueJobs returns still-scheduled jobs whose instant has passed, oldest due first.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC`,
		string(JobScheduled), now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ClaimJob conditionally moves a job from scheduled to claimed.
// It reports false when the row was no longer in scheduled state, which is
// how a concurrent claimer loses the race; that outcome is not an error.
func (s *Store) ClaimJob(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, claimed_at = ?
		 WHERE id = ? AND status = ?`,
		string(JobClaimed), now.UnixMilli(), id, string(JobScheduled))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResolveJob conditionally moves a claimed job to a terminal outcome.
// status must be JobPublished (with mediaID) or JobFailed (with errMsg).
func (s *Store) ResolveJob(ctx context.Context, id string, status JobStatus, mediaID, errMsg string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, platform_media_id = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(status), nullStr(mediaID), nullStr(errMsg), id, string(JobClaimed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelJob conditionally moves a still-scheduled job to cancelled.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ? WHERE id = ? AND status = ?`,
		string(JobCancelled), id, string(JobScheduled))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseStaleClaims moves jobs claimed before cutoff back to scheduled.
// Run at startup to recover claims orphaned by a crash mid-publish; the job
// becomes due again and a duplicate publish attempt is possible.
func (s *Store) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, claimed_at = NULL
		 WHERE status = ? AND claimed_at < ?`,
		string(JobScheduled), string(JobClaimed), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteTerminalJobsBefore purges published/failed/cancelled jobs created
// before cutoff. Pending and claimed jobs are never touched.
func (s *Store) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_jobs
		 WHERE created_at < ? AND status IN (?,?,?)`,
		cutoff.UnixMilli(), string(JobPublished), string(JobFailed), string(JobCancelled))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j         Job
		caption   sql.NullString
		schedMS   int64
		createdMS int64
		status    string
		claimedMS sql.NullInt64
		chatID    sql.NullInt64
		msgID     sql.NullInt64
		mediaID   sql.NullString
		errMsg    sql.NullString
	)
	err := r.Scan(&j.ID, &j.UserID, &j.ImageURL, &caption, &schedMS, &createdMS, &status,
		&claimedMS, &chatID, &msgID, &mediaID, &errMsg)
	if err != nil {
		return Job{}, err
	}
	j.Caption = caption.String
	j.ScheduledAt = time.UnixMilli(schedMS)
	j.CreatedAt = time.UnixMilli(createdMS)
	j.Status = JobStatus(status)
	if claimedMS.Valid {
		j.ClaimedAt = time.UnixMilli(claimedMS.Int64)
	}
	j.OriginChatID = chatID.Int64
	j.OriginMessageID = int(msgID.Int64)
	j.PlatformMediaID = mediaID.String
	j.ErrorMessage = errMsg.String
	return j, nil
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
