package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregoryb/recordscrape/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "error",
			ShutdownTimeout: 5 * time.Second,
		},
		Engine: config.EngineConfig{
			WorkerCount:       1,
			QueueSize:         4,
			ReaperInterval:    time.Minute,
			RetentionWindow:   time.Hour,
			OrphanThreshold:   time.Minute,
			HeartbeatInterval: time.Second,
		},
		Pool: config.PoolConfig{
			MaxSize:        1,
			AcquireTimeout: time.Second,
			IdleAge:        time.Minute,
			ReapInterval:   time.Minute,
		},
		Browser: config.BrowserConfig{
			Headless:  true,
			SearchURL: "http://records.example.test/search",
		},
	}
}

// testApplication wires the real components. No browser is launched
// until a task actually runs, so route tests stay hermetic.
func testApplication(t *testing.T) *application {
	t.Helper()
	app, err := newApplication(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app
}

func TestRouter_Health(t *testing.T) {
	router := testApplication(t).setupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := testApplication(t).setupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "recordscrape_pool_sessions")
	assert.Contains(t, body, "recordscrape_tasks")
}

func TestRouter_EmptyTaskList(t *testing.T) {
	router := testApplication(t).setupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks":[]}`, w.Body.String())
}

func TestRouter_UnknownTask(t *testing.T) {
	router := testApplication(t).setupRouter()

	w := httptest.NewRecorder()
	target := "/api/v1/task/" + uuid.NewString() + "/status"
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_InvalidSubmitBody(t *testing.T) {
	router := testApplication(t).setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(`{"pages":[]}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
