package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/scheduler"
	"github.com/alem-hub/weekly-leaderboard/internal/interface/http/handlers"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

func newTestServer(t *testing.T, board *leaderboard.Board, health *handlers.CompositeHealthChecker) *httptest.Server {
	t.Helper()
	return newTestServerWithJobs(t, board, nil, health)
}

func newTestServerWithJobs(t *testing.T, board *leaderboard.Board, jobs *scheduler.Scheduler, health *handlers.CompositeHealthChecker) *httptest.Server {
	t.Helper()
	m := metrics.New("test")
	m.WeekReset()

	deps := Dependencies{
		Health:  health,
		Metrics: m.Handler(),
		Logger:  logger.Discard(),
	}
	if board != nil {
		deps.Board = board
	}
	if jobs != nil {
		deps.Jobs = jobs
	}

	s := NewServer(DefaultConfig(), deps)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestServer_Health(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test")
	var brokerDown atomic.Bool
	health.AddCheck("queue", handlers.NewPingCheck(pingFunc(func(context.Context) error {
		if brokerDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	})))

	ts := newTestServer(t, nil, health)

	code, body, _ := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body, _ = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"healthy":true`)

	brokerDown.Store(true)
	code, body, _ = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "Some checks failed: queue")
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, body, _ := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "test_week_resets_total 1")
}

func TestServer_Snapshot(t *testing.T) {
	now := time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)
	board := leaderboard.NewBoard(leaderboard.WithClock(func() time.Time { return now }))
	ts := newTestServer(t, board, nil)

	code, _, _ := get(t, ts.URL+"/api/v1/users/1/snapshot")
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, board.AddUser(1, "alice"))

	code, body, header := get(t, ts.URL+"/api/v1/users/1/snapshot")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "text/plain; charset=utf-8", header.Get("Content-Type"))
	assert.Contains(t, body, "User:\n1. alice (id:1)  0.00\n")

	code, _, _ = get(t, ts.URL+"/api/v1/users/2/snapshot")
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = get(t, ts.URL+"/api/v1/users/abc/snapshot")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, Dependencies{Logger: logger.Discard()})

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, func() bool { return s.Address() != "127.0.0.1:0" }, 5*time.Second, 5*time.Millisecond)

	code, _, _ := get(t, "http://"+s.Address()+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func post(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Standings(t *testing.T) {
	now := time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)
	board := leaderboard.NewBoard(leaderboard.WithClock(func() time.Time { return now }))
	ts := newTestServer(t, board, nil)

	code, body, _ := get(t, ts.URL+"/api/v1/leaderboard")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"users":[]`)

	require.NoError(t, board.AddUser(1, "alice"))
	require.NoError(t, board.AddUser(2, "bob"))
	require.NoError(t, board.AddScore(2, now, decimal.RequireFromString("12.5")))

	code, body, header := get(t, ts.URL+"/api/v1/leaderboard")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var view handlers.StandingsView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	assert.True(t, view.WeekBegin.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)), "week begins on %s", view.WeekBegin)
	assert.Equal(t, []handlers.LineView{
		{Rank: 1, UserID: 2, Name: "bob", Score: "12.50"},
		{Rank: 2, UserID: 1, Name: "alice", Score: "0.00"},
	}, view.Users)
}

func TestServer_Position(t *testing.T) {
	now := time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)
	board := leaderboard.NewBoard(leaderboard.WithClock(func() time.Time { return now }))
	require.NoError(t, board.AddUser(1, "alice"))
	require.NoError(t, board.AddUser(2, "bob"))
	require.NoError(t, board.AddScore(1, now, decimal.NewFromInt(3)))
	ts := newTestServer(t, board, nil)

	code, body, _ := get(t, ts.URL+"/api/v1/users/2")
	require.Equal(t, http.StatusOK, code)
	var line handlers.LineView
	require.NoError(t, json.Unmarshal([]byte(body), &line))
	assert.Equal(t, handlers.LineView{Rank: 2, UserID: 2, Name: "bob", Score: "0.00"}, line)

	code, _, _ = get(t, ts.URL+"/api/v1/users/9")
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = get(t, ts.URL+"/api/v1/users/-1")
	assert.Equal(t, http.StatusBadRequest, code)
}

type stubJob struct {
	name string
	err  error
}

func (j stubJob) Name() string { return j.name }

func (j stubJob) Run(context.Context) error { return j.err }

func TestServer_Jobs(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: logger.Discard()})
	require.NoError(t, sched.Register(stubJob{name: "refresh_gauges"}, scheduler.Every(time.Minute)))
	require.NoError(t, sched.Register(stubJob{name: "broken", err: errors.New("boom")}, scheduler.Every(time.Hour)))
	ts := newTestServerWithJobs(t, nil, sched, nil)

	code, body := post(t, ts.URL+"/api/v1/jobs/refresh_gauges/run")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"completed"`)

	code, body = post(t, ts.URL+"/api/v1/jobs/broken/run")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, `"error":"boom"`)

	code, _ = post(t, ts.URL+"/api/v1/jobs/missing/run")
	assert.Equal(t, http.StatusNotFound, code)

	code, body, _ = get(t, ts.URL+"/api/v1/jobs")
	require.Equal(t, http.StatusOK, code)
	var views []handlers.JobView
	require.NoError(t, json.Unmarshal([]byte(body), &views))
	require.Len(t, views, 2)

	assert.Equal(t, "refresh_gauges", views[0].Name)
	assert.Equal(t, int64(1), views[0].RunCount)
	assert.NotNil(t, views[0].LastRun)
	assert.Empty(t, views[0].LastError)

	assert.Equal(t, "broken", views[1].Name)
	assert.Equal(t, int64(1), views[1].FailCount)
	assert.Equal(t, "boom", views[1].LastError)
}
