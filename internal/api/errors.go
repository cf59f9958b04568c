package api

import (
	"errors"
	"net/http"

	"github.com/gregoryb/recordscrape/internal/task"
)

// MapErrorToStatusCode maps engine errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrShuttingDown):
		return http.StatusServiceUnavailable

	case errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized message for the client.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, task.ErrNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrQueueFull):
		return "Task queue is full, try again later"

	case errors.Is(err, task.ErrShuttingDown):
		return "Server is shutting down"

	case errors.Is(err, task.ErrInvalidTransition):
		return "Task is not in a state that allows this operation"

	default:
		return "An unexpected error occurred"
	}
}
