package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gregoryb/recordscrape/internal/api/shared"
	"github.com/gregoryb/recordscrape/internal/pool"
	"github.com/gregoryb/recordscrape/internal/task"
)

const (
	// defaultWaitTimeout applies when the wait endpoint is called
	// without an explicit timeout.
	defaultWaitTimeout = 60 * time.Second

	// maxWaitTimeout caps client-requested wait timeouts so a single
	// request cannot pin a connection indefinitely.
	maxWaitTimeout = 120 * time.Second
)

// TaskService is the slice of the task manager the handlers need.
type TaskService interface {
	Submit(payload any) (uuid.UUID, error)
	Status(id uuid.UUID) (task.Record, error)
	Result(id uuid.UUID) (task.Record, error)
	Wait(ctx context.Context, id uuid.UUID) (task.Record, error)
	Cancel(id uuid.UUID) error
	List() []task.Record
	PoolStats() pool.Stats
}

// TaskHandler serves the scrape-task endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler backed by the given service.
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With("component", "task_handler"),
	}
}

// Submit handles POST /scrape. It validates the request, enqueues a
// task and returns 202 with the task ID immediately.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	payload, err := req.ToPayload()
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	id, err := h.tasks.Submit(payload)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}

	h.logger.Info("scrape task submitted",
		"task_id", id,
		"street", payload.Address.Street,
		"pages", len(payload.Pages),
		"max_results", payload.MaxResults)

	rec, err := h.tasks.Status(id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(rec, false))
}

// Status handles GET /task/{id}/status.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	rec, err := h.tasks.Status(id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(rec, false))
}

// Result handles GET /task/{id}/result. A task that has not reached
// a terminal state yet gets 202 with its current status and no result.
func (h *TaskHandler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	rec, err := h.tasks.Result(id)
	if err != nil {
		if errors.Is(err, task.ErrNotReady) {
			shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(rec, false))
			return
		}
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(rec, true))
}

// Wait handles GET /task/{id}/wait?timeout=SECONDS. It blocks until
// the task reaches a terminal state or the timeout passes, then
// returns whatever state the task is in.
func (h *TaskHandler) Wait(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "timeout must be a positive integer of seconds")
			return
		}
		timeout = time.Duration(seconds) * time.Second
		if timeout > maxWaitTimeout {
			timeout = maxWaitTimeout
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	rec, err := h.tasks.Wait(ctx, id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	status := http.StatusOK
	if !rec.Status.Terminal() {
		status = http.StatusAccepted
	}
	shared.RespondWithJSON(w, r, status, toTaskResponse(rec, rec.Status.Terminal()))
}

// Cancel handles POST /task/{id}/cancel. Canceling a finished task
// is a no-op that reports the task's final state.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Cancel(id); err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	rec, err := h.tasks.Status(id)
	if err != nil {
		shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
		return
	}
	h.logger.Info("scrape task cancel requested", "task_id", id, "status", rec.Status)
	shared.RespondWithJSON(w, r, http.StatusAccepted, toTaskResponse(rec, false))
}

// List handles GET /tasks. Tasks come back in submission order.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.tasks.List()
	resp := TaskListResponse{Tasks: make([]TaskResponse, len(records))}
	for i, rec := range records {
		resp.Tasks[i] = toTaskResponse(rec, false)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// PoolStats handles GET /pool/stats.
func (h *TaskHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats := h.tasks.PoolStats()
	shared.RespondWithJSON(w, r, http.StatusOK, PoolStatsResponse{
		Total: stats.Total,
		Busy:  stats.Busy,
		Idle:  stats.Idle,
	})
}

// Health handles GET /health.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}
