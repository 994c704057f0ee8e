package jobs

import (
	"context"

	"github.com/wonny/mtfscan/backend/internal/subscription"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// PlanExpiryJob downgrades subscribers whose paid plan has lapsed.
type PlanExpiryJob struct {
	subs      *subscription.Service
	logger    *logger.Logger
	batchSize int
}

// NewPlanExpiryJob creates a new plan expiry job
func NewPlanExpiryJob(subs *subscription.Service, log *logger.Logger, batchSize int) *PlanExpiryJob {
	return &PlanExpiryJob{
		subs:      subs,
		logger:    log,
		batchSize: batchSize,
	}
}

// Name returns the job name
func (j *PlanExpiryJob) Name() string {
	return "plan_expiry"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *PlanExpiryJob) Schedule() string {
	return "*/5 * * * *"
}

// Run downgrades one batch of lapsed plans. Remaining rows are picked
// up by the next tick.
func (j *PlanExpiryJob) Run(ctx context.Context) error {
	expired, err := j.subs.ExpireDue(ctx, j.batchSize)
	if err != nil {
		return err
	}

	if expired > 0 {
		j.logger.WithField("expired", expired).Info("Plan expiry completed")
	}

	return nil
}
