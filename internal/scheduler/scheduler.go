// Package scheduler runs the recurring maintenance jobs on cron
// schedules and keeps a bounded execution history per job.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// jobTimeout caps a single execution, retries included happen within
// fresh contexts.
const jobTimeout = 10 * time.Minute

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	history map[string]*History
	mu      sync.RWMutex

	maxRetries int
	retryDelay time.Duration

	// Consecutive fully-failed executions per job; once the streak
	// reaches failureThreshold the job is suspended for suspendFor.
	failures       map[string]int
	suspendedUntil map[string]time.Time

	failureThreshold int
	suspendFor       time.Duration

	now func() time.Time
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:             cron.New(),
		logger:           log,
		jobs:             make(map[string]Job),
		history:          make(map[string]*History),
		maxRetries:       2,
		retryDelay:       30 * time.Second,
		failures:         make(map[string]int),
		suspendedUntil:   make(map[string]time.Time),
		failureThreshold: 5,
		suspendFor:       time.Minute,
		now:              time.Now,
	}
}

// Register adds a job. Job names are unique.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() {
		s.execute(job)
	}); err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &History{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")

	return nil
}

// Start begins running schedules in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow triggers one job outside its schedule and waits for it.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.execute(job)
	return nil
}

// execute runs one job with bounded retries and records the result. A
// job whose failure streak closed it down is skipped until its
// suspension elapses.
func (s *Scheduler) execute(job Job) {
	name := job.Name()

	s.mu.RLock()
	until := s.suspendedUntil[name]
	s.mu.RUnlock()
	if s.now().Before(until) {
		s.logger.WithFields(map[string]interface{}{
			"job":   name,
			"until": until.Format(time.RFC3339),
		}).Warn("Job suspended, skipping run")
		return
	}

	start := time.Now()

	s.logger.WithField("job", name).Info("Job started")

	var lastErr error
	success := false
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = s.runOnce(job)
		if lastErr == nil {
			success = true
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed")

		if attempt < s.maxRetries {
			time.Sleep(s.retryDelay)
		}
	}

	duration := time.Since(start)
	result := Result{
		JobName:   name,
		StartTime: start,
		Duration:  duration,
		Success:   success,
	}
	if !success && lastErr != nil {
		result.Error = lastErr.Error()
	}

	suspended := false
	s.mu.Lock()
	if history, exists := s.history[name]; exists {
		history.Add(result)
	}
	if success {
		s.failures[name] = 0
	} else {
		s.failures[name]++
		if s.failures[name] >= s.failureThreshold {
			s.suspendedUntil[name] = s.now().Add(s.suspendFor)
			s.failures[name] = 0
			suspended = true
		}
	}
	s.mu.Unlock()

	if suspended {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"failures": s.failureThreshold,
			"pause":    s.suspendFor.String(),
		}).Warn("Job suspended after consecutive failures")
	}

	if success {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": duration.String(),
		}).Info("Job completed")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": duration.String(),
			"error":    lastErr.Error(),
		}).Error("Job failed after all retries")
	}
}

func (s *Scheduler) runOnce(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return job.Run(ctx)
}

// JobNames returns the registered job names.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// JobHistory returns the execution history of one job.
func (s *Scheduler) JobHistory(name string) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return history, nil
}

// Stats summarizes every job's recent executions.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.history))
	for name, history := range s.history {
		failed := history.Failed()

		var lastRun *time.Time
		if latest := history.Latest(1); len(latest) > 0 {
			lastRun = &latest[0].StartTime
		}

		stats[name] = JobStats{
			JobName:      name,
			Schedule:     s.jobs[name].Schedule(),
			TotalRuns:    len(history.Results),
			SuccessCount: len(history.Results) - len(failed),
			FailureCount: len(failed),
			SuccessRate:  history.SuccessRate(),
			LastRun:      lastRun,
		}
	}
	return stats
}

// JobStats summarizes one job's execution record.
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
}
