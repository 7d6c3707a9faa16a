package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/scheduler"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// JobRunner lists and triggers maintenance jobs.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) error
}

// JobView is the JSON form of a scheduled job.
type JobView struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	RunCount  int64      `json:"run_count"`
	FailCount int64      `json:"fail_count"`
	LastError string     `json:"last_error,omitempty"`
}

func newJobView(info scheduler.JobInfo) JobView {
	v := JobView{
		Name:      info.Name,
		Schedule:  info.Schedule,
		NextRun:   info.NextRun,
		RunCount:  info.RunCount,
		FailCount: info.FailCount,
	}
	if !info.LastRun.IsZero() {
		lastRun := info.LastRun
		v.LastRun = &lastRun
	}
	if info.LastError != nil {
		v.LastError = info.LastError.Error()
	}
	return v
}

// Jobs serves GET /api/v1/jobs ordered by next run.
func Jobs(runner JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		infos := runner.ListJobs()
		views := make([]JobView, 0, len(infos))
		for _, info := range infos {
			views = append(views, newJobView(info))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// RunJob serves POST /api/v1/jobs/{name}/run: it runs the job at once and waits for it.
func RunJob(runner JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		err := runner.RunNow(r.Context(), name)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
		case errors.Is(err, scheduler.ErrJobNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, scheduler.ErrJobRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.FromContext(r.Context()).WarnContext(r.Context(), "manual job run failed",
				"job", name,
				logger.Err(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"job":    name,
				"status": "failed",
				"error":  err.Error(),
			})
		}
	}
}
