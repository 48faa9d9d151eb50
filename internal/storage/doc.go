// Package storage is the persistence layer for scheduling state.
//
// It owns two entity families, each keyed independently:
//   - user sessions (one in-progress scheduling draft per user)
//   - scheduled jobs (finalized publish requests and their outcomes)
//
// The store holds no business logic. Status transitions are expressed as
// conditional updates that report whether the precondition row still matched,
// so callers can detect lost races without an extra read.
package storage
