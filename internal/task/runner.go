package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gregoryb/recordscrape/internal/pool"
)

// Runner executes exactly one task end to end: it transitions the
// record to running, borrows a session handle, invokes the work
// function, and guarantees both a final status on the record and the
// handle's return to the pool on every exit path.
type Runner struct {
	store             *Store
	pool              *pool.Pool
	work              WorkFunc
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// NewRunner creates a Runner. heartbeatInterval controls how often a
// running task reports liveness to the store; if zero it defaults to
// 15 seconds.
func NewRunner(store *Store, p *pool.Pool, work WorkFunc, heartbeatInterval time.Duration, logger *slog.Logger) *Runner {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	return &Runner{
		store:             store,
		pool:              p,
		work:              work,
		logger:            logger.With("component", "task_runner"),
		heartbeatInterval: heartbeatInterval,
	}
}

// Run executes the task. quit is the task's cooperative cancellation
// signal; if it is already set before execution begins, the work
// function is never invoked and the task moves straight to canceled.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, quit <-chan struct{}) {
	logger := r.logger.With("task_id", id)

	select {
	case <-quit:
		// Cancellation won before the task started.
		if err := r.store.Transition(id, []Status{StatusCreated, StatusPending}, StatusCanceled, nil); err != nil {
			logger.Debug("skipping canceled task", "error", err)
		} else {
			logger.Info("task canceled before start")
		}
		return
	default:
	}

	if err := r.store.Transition(id, []Status{StatusCreated, StatusPending}, StatusRunning, nil); err != nil {
		// Most likely canceled between the quit check and here.
		logger.Debug("task not runnable", "error", err)
		return
	}

	rec, err := r.store.Get(id)
	if err != nil {
		logger.Error("running task disappeared from store", "error", err)
		return
	}

	stopHeartbeat := r.startHeartbeat(id)
	defer stopHeartbeat()

	logger.Info("task running")

	slot, err := r.pool.Acquire(ctx)
	if err != nil {
		// The work function was never invoked; report the task as
		// failed rather than crashing or retrying.
		kind := ErrorKindSession
		if errors.Is(err, pool.ErrExhausted) {
			kind = ErrorKindPoolExhausted
		}
		r.finish(id, StatusFailed, nil, err.Error(), kind, logger)
		return
	}

	healthy := true
	defer func() {
		r.pool.Release(slot, healthy)
	}()

	result, err := r.invoke(ctx, slot.Handle(), rec.Payload, quit)

	switch {
	case err == nil:
		r.finish(id, StatusCompleted, result, "", "", logger)

	case errors.Is(err, ErrCanceled):
		// The work function observed the quit signal at a checkpoint.
		// Partial results, if any, are kept on the record.
		r.finish(id, StatusCanceled, result, "", "", logger)

	default:
		kind := classify(err)
		healthy = kind != ErrorKindSession
		r.finish(id, StatusFailed, result, err.Error(), kind, logger)
	}
}

// invoke calls the work function, converting a panic into an error so
// one task's fault can never take down the manager process.
func (r *Runner) invoke(ctx context.Context, handle pool.Handle, payload any, quit <-chan struct{}) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("work function panicked: %v", rec)
		}
	}()
	return r.work(ctx, handle, payload, quit)
}

// finish applies the terminal transition. A running task may have been
// moved to stopping by a concurrent cancel; either source is accepted.
// If another outcome already won the race, the transition fails with
// ErrInvalidTransition and this outcome is discarded.
func (r *Runner) finish(id uuid.UUID, to Status, result any, errMsg string, kind ErrorKind, logger *slog.Logger) {
	err := r.store.Transition(id, []Status{StatusRunning, StatusStopping}, to, func(rec *Record) {
		rec.Result = result
		rec.ErrorMessage = errMsg
		rec.ErrorKind = kind
	})
	if err != nil {
		logger.Warn("terminal transition lost the race, outcome discarded",
			"intended_status", to,
			"error", err)
		return
	}

	switch to {
	case StatusCompleted:
		logger.Info("task completed")
	case StatusCanceled:
		logger.Info("task canceled at checkpoint")
	default:
		logger.Error("task failed", "error", errMsg, "error_kind", kind)
	}
}

// startHeartbeat reports liveness until the returned stop function is
// called.
func (r *Runner) startHeartbeat(id uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.store.Heartbeat(id)
			}
		}
	}()
	return func() { close(done) }
}

// classify maps a work-function error to an error kind. Errors that do
// not classify themselves are treated as session faults.
func classify(err error) ErrorKind {
	var sf sessionFaulter
	if errors.As(err, &sf) && !sf.SessionFault() {
		return ErrorKindData
	}
	return ErrorKindSession
}
