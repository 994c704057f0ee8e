package jobs

import (
	"context"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// SignalPurgeJob removes signals past their retention period. Base
// signals are kept longer than the per-subscriber derivations.
type SignalPurgeJob struct {
	signals contracts.SignalRepository
	derived contracts.SubscriberSignalRepository
	logger  *logger.Logger

	baseRetentionDays int
	userRetentionDays int
}

// NewSignalPurgeJob creates a new signal purge job
func NewSignalPurgeJob(signals contracts.SignalRepository, derived contracts.SubscriberSignalRepository, log *logger.Logger, baseRetentionDays, userRetentionDays int) *SignalPurgeJob {
	return &SignalPurgeJob{
		signals:           signals,
		derived:           derived,
		logger:            log,
		baseRetentionDays: baseRetentionDays,
		userRetentionDays: userRetentionDays,
	}
}

// Name returns the job name
func (j *SignalPurgeJob) Name() string {
	return "signal_purge"
}

// Schedule returns the cron schedule (hourly)
func (j *SignalPurgeJob) Schedule() string {
	return "@hourly"
}

// Run purges expired rows from both signal tables
func (j *SignalPurgeJob) Run(ctx context.Context) error {
	now := time.Now()

	baseDeleted, err := j.signals.DeleteCreatedBefore(ctx, now.AddDate(0, 0, -j.baseRetentionDays))
	if err != nil {
		return err
	}

	userDeleted, err := j.derived.DeleteCreatedBefore(ctx, now.AddDate(0, 0, -j.userRetentionDays))
	if err != nil {
		return err
	}

	if baseDeleted > 0 || userDeleted > 0 {
		j.logger.WithFields(map[string]interface{}{
			"base_signals": baseDeleted,
			"user_signals": userDeleted,
		}).Info("Signal purge completed")
	}

	return nil
}
