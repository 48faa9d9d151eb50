package session

import "errors"

var (
	// ErrInvalidStep means a step was attempted before its prerequisites
	// (e.g. picking a time before a date). The session is left unchanged.
	ErrInvalidStep = errors.New("session: step out of order")

	ErrPastDate    = errors.New("session: date is before today")
	ErrPastTime    = errors.New("session: composed instant is not in the future")
	ErrInvalidTime = errors.New("session: hour or minute out of range")
)
