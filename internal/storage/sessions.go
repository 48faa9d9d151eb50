package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const dateLayout = "2006-01-02"

// SaveSession inserts or fully replaces the row for sess.UserID.
// A second scheduling flow for the same user overwrites the previous draft.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	var date any
	if sess.Date != nil {
		date = sess.Date.Format(dateLayout)
	}
	var hour, minute any
	if sess.Hour != nil {
		hour = *sess.Hour
	}
	if sess.Minute != nil {
		minute = *sess.Minute
	}
	var extra any
	if len(sess.Extra) > 0 {
		extra = string(sess.Extra)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions(user_id, selected_date, selected_hour, selected_minute, last_updated, extra_data)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   selected_date=excluded.selected_date,
		   selected_hour=excluded.selected_hour,
		   selected_minute=excluded.selected_minute,
		   last_updated=excluded.last_updated,
		   extra_data=excluded.extra_data`,
		sess.UserID, date, hour, minute, sess.LastUpdated.UnixMilli(), extra,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, userID int64) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, selected_date, selected_hour, selected_minute, last_updated, extra_data
		 FROM user_sessions WHERE user_id = ?`, userID)

	var (
		sess    Session
		date    sql.NullString
		hour    sql.NullInt64
		minute  sql.NullInt64
		updated int64
		extra   sql.NullString
	)
	err := row.Scan(&sess.UserID, &date, &hour, &minute, &updated, &extra)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	if date.Valid {
		d, err := time.ParseInLocation(dateLayout, date.String, time.Local)
		if err != nil {
			return Session{}, err
		}
		sess.Date = &d
	}
	if hour.Valid {
		h := int(hour.Int64)
		sess.Hour = &h
	}
	if minute.Valid {
		m := int(minute.Int64)
		sess.Minute = &m
	}
	sess.LastUpdated = time.UnixMilli(updated)
	if extra.Valid {
		sess.Extra = []byte(extra.String)
	}
	return sess, nil
}

// DeleteSession removes the user's session. Deleting an absent session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = ?`, userID)
	return err
}

// DeleteSessionsIdleBefore purges sessions whose last update is older than cutoff.
func (s *Store) DeleteSessionsIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE last_updated < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
