package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

var (
	// ErrSelfReferral means a subscriber tried to use their own code.
	ErrSelfReferral = errors.New("self referral not allowed")

	// ErrNoActivePlan means an extension was requested without a
	// running paid plan.
	ErrNoActivePlan = errors.New("no active plan to extend")
)

// Service owns subscriber registration, plan transitions and the
// referral reward ladder.
type Service struct {
	subscribers contracts.SubscriberRepository
	referrals   contracts.ReferralRepository
	logger      *logger.Logger
	plans       config.PlanConfig

	now func() time.Time
}

// NewService creates the subscription service.
func NewService(cfg *config.Config, log *logger.Logger, subscribers contracts.SubscriberRepository, referrals contracts.ReferralRepository) *Service {
	return &Service{
		subscribers: subscribers,
		referrals:   referrals,
		logger:      log,
		plans:       cfg.Plans,
		now:         time.Now,
	}
}

// Register handles first contact. A new subscriber starts on trial; the
// referrer, when given, is captured now and never changes. Returning
// subscribers only get their activity timestamp refreshed.
func (s *Service) Register(ctx context.Context, id int64, username string, referrerID *int64) (*contracts.Subscriber, error) {
	now := s.now()

	existing, err := s.subscribers.Get(ctx, id)
	if err == nil {
		if err := s.subscribers.Touch(ctx, id, now); err != nil {
			s.logger.WithError(err).WithField("subscriber_id", id).Warn("Failed to refresh activity")
		}
		return existing, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("look up subscriber %d: %w", id, err)
	}

	if referrerID != nil {
		if *referrerID == id {
			return nil, ErrSelfReferral
		}
		// An unknown referrer is dropped silently, the registration
		// itself must not fail on a stale code.
		if _, err := s.subscribers.Get(ctx, *referrerID); err != nil {
			if !errors.Is(err, contracts.ErrNotFound) {
				return nil, fmt.Errorf("look up referrer %d: %w", *referrerID, err)
			}
			referrerID = nil
		}
	}

	sub, err := contracts.NewSubscriber(id, username, referrerID, s.plans.TrialDays, now)
	if err != nil {
		return nil, err
	}
	if err := s.subscribers.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscriber %d: %w", id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"subscriber_id": id,
		"referred":      referrerID != nil,
	}).Info("Subscriber registered")

	return sub, nil
}

// Activate puts the subscriber on a paid tier for the configured plan
// duration. An already running plan is extended from its current end.
// Activation then feeds the referral pipeline for this subscriber.
func (s *Service) Activate(ctx context.Context, id int64, tier contracts.Tier) error {
	if !tier.Paid() {
		return fmt.Errorf("cannot activate non-paid tier %q", tier)
	}

	if err := s.subscribers.ActivatePlan(ctx, id, tier, s.plans.DurationDays); err != nil {
		return fmt.Errorf("activate %s for %d: %w", tier, id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"subscriber_id": id,
		"tier":          string(tier),
		"days":          s.plans.DurationDays,
	}).Info("Plan activated")

	if err := s.RegisterReferral(ctx, id, tier); err != nil {
		// The activation stands either way.
		s.logger.WithError(err).WithField("subscriber_id", id).Warn("Referral registration skipped")
	}

	return nil
}

// ExtendCurrent pushes the running plan's end by the given days.
func (s *Service) ExtendCurrent(ctx context.Context, id int64, days int) error {
	if err := s.subscribers.ExtendPlan(ctx, id, days); err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return ErrNoActivePlan
		}
		return fmt.Errorf("extend plan for %d: %w", id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"subscriber_id": id,
		"days":          days,
	}).Info("Plan extended")

	return nil
}

// ExpireDue downgrades at most batchSize subscribers whose paid plan
// has lapsed back to the free tier. Returns the number downgraded.
func (s *Service) ExpireDue(ctx context.Context, batchSize int) (int, error) {
	expired, err := s.subscribers.ExpireDue(ctx, s.now(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("expire due plans: %w", err)
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("Lapsed plans downgraded to free")
	}
	return expired, nil
}

// Status returns the subscriber's readable plan state.
func (s *Service) Status(ctx context.Context, id int64) (*contracts.Subscriber, contracts.PlanStatus, error) {
	sub, err := s.subscribers.Get(ctx, id)
	if err != nil {
		return nil, contracts.PlanStatus{}, err
	}
	return sub, sub.Status(s.now()), nil
}
