package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gregoryb/recordscrape/internal/pool"
)

// Status represents the lifecycle state of a task.
type Status string

// Possible task status values.
const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopping  Status = "stopping"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrorKind classifies how a failed task failed.
type ErrorKind string

const (
	// ErrorKindSession marks a navigation/automation fault that
	// plausibly corrupted the browser session.
	ErrorKindSession ErrorKind = "session_fault"

	// ErrorKindData marks a markup/shape fault; the session is fine.
	ErrorKindData ErrorKind = "data_fault"

	// ErrorKindPoolExhausted marks a task that never ran because no
	// session handle became available within the acquire timeout.
	ErrorKindPoolExhausted ErrorKind = "pool_exhausted"

	// ErrorKindOrphaned marks a task whose worker stopped reporting
	// progress; set by the reaper, never synchronously.
	ErrorKindOrphaned ErrorKind = "orphaned"
)

// Record is the authoritative state object for one submitted task.
// The store owns every record; callers only ever see snapshots.
type Record struct {
	ID      uuid.UUID
	Status  Status
	Payload any

	Result       any
	ErrorMessage string
	ErrorKind    ErrorKind

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// heartbeat is the worker's last liveness report, maintained only
	// while the task is running. Used by the reaper's orphan scan.
	heartbeat time.Time
}

// WorkFunc executes the actual job against a borrowed session handle.
// The payload is the submission input, opaque to the engine. quit is a
// cooperative cancellation signal: implementations should check it at
// safe checkpoints and return ErrCanceled (optionally with a partial
// result) when it fires. Implementations must not retain or release
// the handle.
type WorkFunc func(ctx context.Context, handle pool.Handle, payload any, quit <-chan struct{}) (any, error)

// sessionFaulter is implemented by work-function errors that classify
// themselves as session faults or data faults. Errors that do not
// implement it are treated as session faults, the conservative choice
// for a stateful browser session.
type sessionFaulter interface {
	SessionFault() bool
}
