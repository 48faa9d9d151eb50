package jobs

import "errors"

var (
	ErrNotOwner          = errors.New("jobs: requester does not own this job")
	ErrInvalidTransition = errors.New("jobs: status transition not allowed")
	ErrBadOutcome        = errors.New("jobs: outcome must carry exactly one of media id or error detail")
)
