// Package scheduler implements the time-driven parts of the leaderboard service:
// the reminder loop that pushes snapshots to connected users, the interruptible
// waiter it sleeps on, and a small job runner for periodic maintenance tasks
// such as the weekly reset and gauge refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name      string
	Schedule  string
	LastRun   time.Time
	NextRun   time.Time
	RunCount  int64
	FailCount int64
	LastError error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// scheduledJob wraps a Job with scheduling information.
type scheduledJob struct {
	job      Job
	schedule Schedule
	info     JobInfo
	running  bool
}

// Scheduler runs registered jobs on their schedules. Jobs run one at a time on the
// scheduler goroutine; a job is never started again while it is still running,
// including runs started by RunNow.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*scheduledJob

	waiter   *Waiter
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Location for schedule calculations (default: UTC).
	Location *time.Location

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Scheduler{
		jobs:     make(map[string]*scheduledJob),
		waiter:   NewWaiter(),
		location: config.Location,
		logger:   config.Logger.With(logger.Component("scheduler")),
		now:      config.Clock,
	}
}

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		info: JobInfo{
			Name:     name,
			Schedule: schedule.String(),
			NextRun:  schedule.Next(s.now().In(s.location)),
		},
	}
	s.jobs[name] = sj
	info := sj.info
	s.mu.Unlock()

	// The loop may be sleeping towards a later job.
	s.waiter.Interrupt()

	s.logger.Info("job registered",
		"job", name,
		"schedule", info.Schedule,
		"next_run", info.NextRun.Format(time.RFC3339),
	)
	return nil
}

// Run executes due jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.logger.Info("scheduler started", "jobs_count", s.jobCount())

	for !s.waiter.IsShutdown() {
		for _, sj := range s.dueJobs() {
			s.runJob(ctx, sj)
		}
		s.waiter.WaitUntil(s.nextWake())
	}

	s.logger.Info("scheduler stopped")
	return nil
}

// Stop makes Run return once the running job, if any, completes.
func (s *Scheduler) Stop() {
	s.waiter.Shutdown()
}

// RunNow immediately executes a job by name, ignoring its schedule. It returns
// ErrJobRunning when the job is already running.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) error {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return s.execute(ctx, sj)
}

// ListJobs returns information about all registered jobs ordered by next run.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, sj := range s.jobs {
		infos = append(infos, sj.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].NextRun.Before(infos[j].NextRun)
	})
	return infos
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// dueJobs returns the jobs whose next run has come, advancing their schedules.
func (s *Scheduler) dueJobs() []*scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.location)
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.info.NextRun.IsZero() || sj.info.NextRun.After(now) {
			continue
		}
		sj.info.NextRun = sj.schedule.Next(now)
		due = append(due, sj)
	}
	return due
}

// nextWake returns the earliest next run, or one minute from now without jobs.
func (s *Scheduler) nextWake() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	wake := s.now().Add(time.Minute)
	for _, sj := range s.jobs {
		if !sj.info.NextRun.IsZero() && sj.info.NextRun.Before(wake) {
			wake = sj.info.NextRun
		}
	}
	return wake
}

func (s *Scheduler) runJob(ctx context.Context, sj *scheduledJob) {
	name := sj.job.Name()
	switch err := s.execute(ctx, sj); {
	case errors.Is(err, ErrJobRunning):
		s.logger.Warn("job still running, tick skipped", "job", name)
	case err != nil:
		s.logger.Error("job failed", "job", name, logger.Err(err))
	}
}

// execute runs the job unless it is already running and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) error {
	name := sj.job.Name()

	s.mu.Lock()
	if sj.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	sj.running = true
	s.mu.Unlock()

	startedAt := s.now()
	err := sj.job.Run(ctx)
	took := time.Since(startedAt)

	s.mu.Lock()
	sj.running = false
	sj.info.LastRun = startedAt
	sj.info.RunCount++
	sj.info.LastError = err
	if err != nil {
		sj.info.FailCount++
	}
	s.mu.Unlock()

	if err == nil {
		s.logger.Debug("job completed", "job", name, logger.Latency(took))
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned when a job is started while its previous run is in progress.
	ErrJobRunning = errors.New("job is already running")
)
