package jobs

import (
	"context"

	"github.com/wonny/mtfscan/backend/pkg/database"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// HealthCheckJob pings the database and logs pool pressure so a dying
// connection shows up before the scanner starts failing.
type HealthCheckJob struct {
	db     *database.DB
	logger *logger.Logger
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(db *database.DB, log *logger.Logger) *HealthCheckJob {
	return &HealthCheckJob{
		db:     db,
		logger: log,
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *HealthCheckJob) Schedule() string {
	return "0 */6 * * *"
}

// Run checks database health
func (j *HealthCheckJob) Run(ctx context.Context) error {
	status, err := j.db.HealthCheck(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"healthy":       status.Healthy,
		"response_time": status.ResponseTime.String(),
		"total_conns":   status.Stats.TotalConns,
		"idle_conns":    status.Stats.IdleConns,
	}).Info("Database health check")

	return nil
}
