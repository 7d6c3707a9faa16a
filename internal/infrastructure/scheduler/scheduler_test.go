package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{Logger: logger.Discard()})
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, Every(time.Second)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, Every(time.Second)), ErrJobAlreadyExists)

	require.NoError(t, s.Register(&countingJob{name: "b"}, Every(time.Millisecond)))

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].Name)
	assert.Equal(t, "@every 1ms", jobs[0].Schedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.Register(failing, Every(time.Hour)))

	assert.EqualError(t, s.RunNow(context.Background(), "failing"), "boom")
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrJobNotFound)

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	assert.EqualError(t, info.LastError, "boom")
}

func TestScheduler_Run(t *testing.T) {
	s := newTestScheduler()
	fast := &countingJob{name: "fast"}
	slow := &countingJob{name: "slow"}
	require.NoError(t, s.Register(fast, Every(5*time.Millisecond)))
	require.NoError(t, s.Register(slow, Every(time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return fast.runs.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.Equal(t, int64(0), slow.runs.Load())
}

func TestScheduler_RegisterWakesLoop(t *testing.T) {
	s := newTestScheduler()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	job := &countingJob{name: "late"}
	require.NoError(t, s.Register(job, Every(5*time.Millisecond)))

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	select {
	case j.started <- struct{}{}:
	default:
	}
	select {
	case <-j.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestScheduler_RunNowRejectsOverlap(t *testing.T) {
	s := newTestScheduler()
	job := &blockingJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	first := make(chan error, 1)
	go func() { first <- s.RunNow(context.Background(), "blocking") }()
	<-job.started

	assert.ErrorIs(t, s.RunNow(context.Background(), "blocking"), ErrJobRunning)

	close(job.release)
	require.NoError(t, <-first)

	// Finished runs free the job again.
	require.NoError(t, s.RunNow(context.Background(), "blocking"))

	info := s.ListJobs()[0]
	assert.Equal(t, int64(2), info.RunCount)
	assert.Equal(t, int64(0), info.FailCount)
}

func TestScheduler_LoopSkipsJobStartedByRunNow(t *testing.T) {
	s := newTestScheduler()
	job := &blockingJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(5*time.Millisecond)))

	manual := make(chan error, 1)
	go func() { manual <- s.RunNow(context.Background(), "blocking") }()
	<-job.started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Several ticks pass while the manual run holds the job.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-job.started:
		t.Fatal("job started twice")
	default:
	}

	close(job.release)
	require.NoError(t, <-manual)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RegisterDuringRun(t *testing.T) {
	s := newTestScheduler()
	busy := &countingJob{name: "busy"}
	require.NoError(t, s.Register(busy, Every(time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The loop keeps rescheduling while new jobs arrive.
	jobs := make([]*countingJob, 20)
	for i := range jobs {
		jobs[i] = &countingJob{name: "late-" + string(rune('a'+i))}
		require.NoError(t, s.Register(jobs[i], Every(time.Millisecond)))
	}

	assert.Eventually(t, func() bool {
		for _, j := range jobs {
			if j.runs.Load() == 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)
	assert.Len(t, s.ListJobs(), 21)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
