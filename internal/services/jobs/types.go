package jobs

import (
	"time"

	"postbot/internal/storage"
)

// Job and status values are the storage rows; the registry adds no fields.
type Job = storage.Job

type Status = storage.JobStatus

const (
	StatusScheduled = storage.JobScheduled
	StatusClaimed   = storage.JobClaimed
	StatusPublished = storage.JobPublished
	StatusFailed    = storage.JobFailed
	StatusCancelled = storage.JobCancelled
)

// Draft is everything a caller supplies to create a job; the registry fills
// in the id, creation instant and initial status.
type Draft struct {
	UserID          int64
	ImageURL        string
	Caption         string
	ScheduledAt     time.Time
	OriginChatID    int64
	OriginMessageID int
}

// Outcome is the terminal result of one publish attempt.
// Exactly one of MediaID or ErrorDetail must be set.
type Outcome struct {
	MediaID     string
	ErrorDetail string
}

// Success records the platform-assigned media identifier.
func Success(mediaID string) Outcome { return Outcome{MediaID: mediaID} }

// Failure records the publish error detail.
func Failure(detail string) Outcome { return Outcome{ErrorDetail: detail} }
