package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// JobStatus is the lifecycle state of a scheduled job.
//
// Valid transitions:
//
//	scheduled -> claimed -> published | failed
//	scheduled -> cancelled
//
// claimed is transient: it marks a job between a claim and its resolution.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobClaimed   JobStatus = "claimed"
	JobPublished JobStatus = "published"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobPublished || s == JobFailed || s == JobCancelled
}

// Session is a user's in-progress scheduling draft.
// Date, Hour and Minute are nil until the corresponding step completes.
type Session struct {
	UserID      int64
	Date        *time.Time // calendar date; only year/month/day are significant
	Hour        *int
	Minute      *int
	LastUpdated time.Time

	// Extra carries step-specific transient state as an opaque JSON blob.
	// The store enforces no schema on it.
	Extra []byte
}

// Job is a finalized, durable request to publish a payload at a future instant.
type Job struct {
	ID          string
	UserID      int64
	ImageURL    string
	Caption     string
	ScheduledAt time.Time
	CreatedAt   time.Time
	Status      JobStatus

	// ClaimedAt is zero unless the job has been claimed; it survives
	// resolution so stale-claim recovery can reason about crash windows.
	ClaimedAt time.Time

	// Origin of the request, used to notify the requester of the outcome.
	OriginChatID    int64
	OriginMessageID int

	PlatformMediaID string // set only when Status == JobPublished
	ErrorMessage    string // set only when Status == JobFailed
}
