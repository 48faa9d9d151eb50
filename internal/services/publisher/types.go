package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"postbot/internal/services/jobs"
	logx "postbot/pkg/logx"
)

// Publisher pushes one image post to the destination platform and returns
// the platform-assigned media id.
type Publisher interface {
	Publish(ctx context.Context, imageURL, caption string) (mediaID string, err error)
}

// Messenger delivers outcome notices to the chat a job originated from.
// A nil Messenger disables notifications.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// Interval between passes. Defaults to a minute.
	Interval time.Duration
	// StaleClaimAfter is how long a claim may sit unresolved before startup
	// recovery returns the job to the scheduled pool. Defaults to 5×Interval.
	StaleClaimAfter time.Duration
	// NotifyRatePerSec bounds outcome notifications. Defaults to 10.
	NotifyRatePerSec int
}

func (c Config) interval() time.Duration {
	if c.Interval <= 0 {
		return time.Minute
	}
	return c.Interval
}

func (c Config) staleAfter() time.Duration {
	if c.StaleClaimAfter > 0 {
		return c.StaleClaimAfter
	}
	return 5 * c.interval()
}

type Service struct {
	cfg     Config
	reg     *jobs.Service
	pub     Publisher
	msg     Messenger
	log     logx.Logger
	now     func() time.Time
	limiter *rate.Limiter

	mu        sync.Mutex
	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc

	// passMu serializes passes; a slow platform must not let ticks overlap.
	passMu sync.Mutex
}
