package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	runs     atomic.Int32
	err      error
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	s := New(logger.NewNop())
	// No waiting between attempts in tests.
	s.retryDelay = 0
	return s
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Register(&stubJob{name: "purge", schedule: "@hourly"}))
	assert.Error(t, s.Register(&stubJob{name: "purge", schedule: "@daily"}))
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.Register(&stubJob{name: "broken", schedule: "not a cron"}))
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler()

	job := &stubJob{name: "purge", schedule: "@hourly"}
	require.NoError(t, s.Register(job))

	require.NoError(t, s.RunNow("purge"))
	assert.Equal(t, int32(1), job.runs.Load())

	history, err := s.JobHistory("purge")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.True(t, history.Results[0].Success)

	assert.Error(t, s.RunNow("missing"))
}

func TestFailedJobIsRetriedAndRecorded(t *testing.T) {
	s := newTestScheduler()

	job := &stubJob{name: "flaky", schedule: "@hourly", err: errors.New("db down")}
	require.NoError(t, s.Register(job))
	require.NoError(t, s.RunNow("flaky"))

	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), job.runs.Load())

	history, err := s.JobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.False(t, history.Results[0].Success)
	assert.Contains(t, history.Results[0].Error, "db down")

	stats := s.Stats()
	assert.Equal(t, 1, stats["flaky"].FailureCount)
	assert.Zero(t, stats["flaky"].SuccessRate)
}

func TestConsecutiveFailuresSuspendJob(t *testing.T) {
	s := newTestScheduler()
	s.maxRetries = 0

	job := &stubJob{name: "flaky", schedule: "@hourly", err: errors.New("db down")}
	require.NoError(t, s.Register(job))

	for i := 0; i < s.failureThreshold; i++ {
		require.NoError(t, s.RunNow("flaky"))
	}
	require.Equal(t, int32(5), job.runs.Load())

	// The streak closed the job down: further triggers are skipped.
	require.NoError(t, s.RunNow("flaky"))
	assert.Equal(t, int32(5), job.runs.Load())

	// Once the suspension elapses the job runs again.
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.NoError(t, s.RunNow("flaky"))
	assert.Equal(t, int32(6), job.runs.Load())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	s := newTestScheduler()
	s.maxRetries = 0

	job := &stubJob{name: "flaky", schedule: "@hourly", err: errors.New("db down")}
	require.NoError(t, s.Register(job))

	for i := 0; i < s.failureThreshold-1; i++ {
		require.NoError(t, s.RunNow("flaky"))
	}

	job.err = nil
	require.NoError(t, s.RunNow("flaky"))

	// The success reset the streak, so another shy-of-threshold run of
	// failures must not suspend the job.
	job.err = errors.New("db down")
	for i := 0; i < s.failureThreshold-1; i++ {
		require.NoError(t, s.RunNow("flaky"))
	}

	before := job.runs.Load()
	require.NoError(t, s.RunNow("flaky"))
	assert.Equal(t, before+1, job.runs.Load())
}

func TestHistoryBounded(t *testing.T) {
	h := &History{}
	for i := 0; i < historyLimit+20; i++ {
		h.Add(Result{JobName: "x", StartTime: time.Now(), Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.Latest(10), 10)
	assert.InDelta(t, 0.5, h.SuccessRate(), 0.05)
}
