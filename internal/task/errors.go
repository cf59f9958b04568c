package task

import "errors"

// Common errors returned by the task engine.
var (
	// ErrNotFound is returned for lookups of unknown task IDs.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status transition's
	// expected source state no longer matches. Under correct use this
	// only happens when two outcomes race for the same task; the loser
	// must have no effect.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrNotReady is returned by Result while the task is not yet in
	// a terminal state.
	ErrNotReady = errors.New("task result not ready")

	// ErrQueueFull is returned by Submit when the scheduling queue is
	// saturated.
	ErrQueueFull = errors.New("task queue is full")

	// ErrShuttingDown is returned by Submit after shutdown has begun.
	ErrShuttingDown = errors.New("task manager is shutting down")

	// ErrCanceled is returned by a work function that stopped at a
	// cancellation checkpoint.
	ErrCanceled = errors.New("task canceled")
)
