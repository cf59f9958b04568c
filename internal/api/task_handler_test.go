package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregoryb/recordscrape/internal/pool"
	"github.com/gregoryb/recordscrape/internal/scrape"
	"github.com/gregoryb/recordscrape/internal/task"
)

// stubService scripts TaskService responses for handler tests.
type stubService struct {
	submitID  uuid.UUID
	submitErr error
	record    task.Record
	recordErr error
	cancelErr error
	records   []task.Record
	stats     pool.Stats

	submitted any
}

func (s *stubService) Submit(payload any) (uuid.UUID, error) {
	s.submitted = payload
	return s.submitID, s.submitErr
}
func (s *stubService) Status(id uuid.UUID) (task.Record, error)  { return s.record, s.recordErr }
func (s *stubService) Result(id uuid.UUID) (task.Record, error)  { return s.record, s.recordErr }
func (s *stubService) Cancel(id uuid.UUID) error                 { return s.cancelErr }
func (s *stubService) List() []task.Record                       { return s.records }
func (s *stubService) PoolStats() pool.Stats                     { return s.stats }
func (s *stubService) Wait(ctx context.Context, id uuid.UUID) (task.Record, error) {
	return s.record, s.recordErr
}

func newTestHandler(svc *stubService) *TaskHandler {
	return NewTaskHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func withTaskID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func pendingRecord(id uuid.UUID) task.Record {
	return task.Record{ID: id, Status: task.StatusPending, CreatedAt: time.Now().UTC()}
}

func completedRecord(id uuid.UUID) task.Record {
	now := time.Now().UTC()
	return task.Record{
		ID:          id,
		Status:      task.StatusCompleted,
		CreatedAt:   now,
		StartedAt:   &now,
		CompletedAt: &now,
		Result:      &scrape.Result{TotalListings: 3},
	}
}

func submitBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(ScrapeRequest{
		Address:    AddressInput{Number: "123", Street: "Main St"},
		Pages:      []string{"Parcel", "Owner"},
		MaxResults: 2,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestSubmit_Accepted(t *testing.T) {
	id := uuid.New()
	svc := &stubService{submitID: id, record: pendingRecord(id)}
	h := newTestHandler(svc)

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", submitBody(t)))

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, id.String(), resp.TaskID)
	assert.Equal(t, string(task.StatusPending), resp.Status)
	assert.Nil(t, resp.Result)

	payload, ok := svc.submitted.(*scrape.Request)
	require.True(t, ok, "handler must submit a scrape payload")
	assert.Equal(t, "Main St", payload.Address.Street)
}

func TestSubmit_InvalidBody(t *testing.T) {
	h := newTestHandler(&stubService{})

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewBufferString("{")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_UnknownPageRejected(t *testing.T) {
	body, err := json.Marshal(ScrapeRequest{
		Address:    AddressInput{Street: "Main St"},
		Pages:      []string{"Photos"},
		MaxResults: 1,
	})
	require.NoError(t, err)

	h := newTestHandler(&stubService{})
	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", bytes.NewBuffer(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_QueueFull(t *testing.T) {
	h := newTestHandler(&stubService{submitErr: task.ErrQueueFull})

	w := httptest.NewRecorder()
	h.Submit(w, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", submitBody(t)))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatus_NotFound(t *testing.T) {
	h := newTestHandler(&stubService{recordErr: task.ErrNotFound})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/status", nil), uuid.NewString())
	h.Status(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Task not found", resp.Error)
}

func TestStatus_InvalidID(t *testing.T) {
	h := newTestHandler(&stubService{})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/nope/status", nil), "nope")
	h.Status(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResult_NotReadyReturnsAccepted(t *testing.T) {
	id := uuid.New()
	h := newTestHandler(&stubService{record: pendingRecord(id), recordErr: task.ErrNotReady})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/result", nil), id.String())
	h.Result(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusPending), resp.Status)
	assert.Nil(t, resp.Result, "an unfinished task must not expose a result")
}

func TestResult_Completed(t *testing.T) {
	id := uuid.New()
	h := newTestHandler(&stubService{record: completedRecord(id)})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/result", nil), id.String())
	h.Result(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusCompleted), resp.Status)
	assert.NotNil(t, resp.Result)
}

func TestWait_TerminalReturnsResult(t *testing.T) {
	id := uuid.New()
	h := newTestHandler(&stubService{record: completedRecord(id)})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/wait?timeout=5", nil), id.String())
	h.Wait(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotNil(t, resp.Result)
}

func TestWait_TimeoutReturnsCurrentState(t *testing.T) {
	id := uuid.New()
	h := newTestHandler(&stubService{record: pendingRecord(id)})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/wait?timeout=1", nil), id.String())
	h.Wait(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusPending), resp.Status)
}

func TestWait_BadTimeout(t *testing.T) {
	id := uuid.New()
	h := newTestHandler(&stubService{record: pendingRecord(id)})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodGet, "/api/v1/task/x/wait?timeout=zero", nil), id.String())
	h.Wait(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_Accepted(t *testing.T) {
	id := uuid.New()
	rec := pendingRecord(id)
	rec.Status = task.StatusCanceled
	h := newTestHandler(&stubService{record: rec})

	w := httptest.NewRecorder()
	r := withTaskID(httptest.NewRequest(http.MethodPost, "/api/v1/task/x/cancel", nil), id.String())
	h.Cancel(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(task.StatusCanceled), resp.Status)
}

func TestList(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	h := newTestHandler(&stubService{records: []task.Record{pendingRecord(a), completedRecord(b)}})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp TaskListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, a.String(), resp.Tasks[0].TaskID)
	assert.Equal(t, b.String(), resp.Tasks[1].TaskID)
}

func TestPoolStats(t *testing.T) {
	h := newTestHandler(&stubService{stats: pool.Stats{Total: 3, Busy: 2, Idle: 1}})

	w := httptest.NewRecorder()
	h.PoolStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/pool/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp PoolStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, PoolStatsResponse{Total: 3, Busy: 2, Idle: 1}, resp)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubService{})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
