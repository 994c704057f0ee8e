package scheduler

import (
	"context"
	"time"
)

// Job is one recurring maintenance task.
type Job interface {
	// Name identifies the job in logs, history and the CLI.
	Name() string

	// Run executes the job once.
	Run(ctx context.Context) error

	// Schedule returns the cron expression, e.g. "*/5 * * * *" or
	// "@hourly".
	Schedule() string
}

// Result records one job execution.
type Result struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the per-job result buffer.
const historyLimit = 100

// History keeps the recent executions of one job.
type History struct {
	Results []Result
}

// Add appends a result, dropping the oldest past the limit.
func (h *History) Add(result Result) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns the most recent n results, oldest first.
func (h *History) Latest(n int) []Result {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n == 0 {
		return []Result{}
	}
	return h.Results[len(h.Results)-n:]
}

// Failed returns every recorded failure.
func (h *History) Failed() []Result {
	failed := make([]Result, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// SuccessRate returns the fraction of successful runs, 0.0 to 1.0.
func (h *History) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}
	success := 0
	for _, result := range h.Results {
		if result.Success {
			success++
		}
	}
	return float64(success) / float64(len(h.Results))
}
