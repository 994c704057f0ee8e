package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// ErrNoReferrer means the subscriber registered without a referral
// code, so an activation has nobody to credit.
var ErrNoReferrer = errors.New("subscriber has no referrer")

// RegisterReferral credits the referred subscriber's paid activation to
// their referrer. Each (referrer, referred) pair counts exactly once
// regardless of how many plans the referred subscriber ever buys.
func (s *Service) RegisterReferral(ctx context.Context, referredID int64, tier contracts.Tier) error {
	if !tier.Paid() {
		return fmt.Errorf("referral requires a paid tier, got %q", tier)
	}

	referred, err := s.subscribers.Get(ctx, referredID)
	if err != nil {
		return fmt.Errorf("look up referred %d: %w", referredID, err)
	}
	if referred.ReferrerID == nil {
		return ErrNoReferrer
	}
	referrerID := *referred.ReferrerID
	if referrerID == referredID {
		return ErrSelfReferral
	}
	if _, err := s.subscribers.Get(ctx, referrerID); err != nil {
		return fmt.Errorf("look up referrer %d: %w", referrerID, err)
	}

	inserted, err := s.referrals.Insert(ctx, &contracts.ReferralRecord{
		ReferrerID:    referrerID,
		ReferredID:    referredID,
		ActivatedTier: tier,
		ActivatedAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("record referral %d->%d: %w", referrerID, referredID, err)
	}
	if !inserted {
		// Pair already counted, nothing to credit.
		return nil
	}

	if err := s.subscribers.AddReferralCredits(ctx, referrerID, tier); err != nil {
		return fmt.Errorf("credit referrer %d: %w", referrerID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"referrer_id": referrerID,
		"referred_id": referredID,
		"tier":        string(tier),
	}).Info("Referral credited")

	rewarded, err := s.CheckRewards(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("check rewards for %d: %w", referrerID, err)
	}
	if rewarded {
		if err := s.referrals.MarkRewardApplied(ctx, referrerID, referredID); err != nil {
			s.logger.WithError(err).Warn("Failed to mark reward applied")
		}
	}

	return nil
}

// rewardRule maps a credit balance to the action it buys at a given
// referrer tier.
type rewardRule struct {
	creditTier contracts.Tier
	threshold  int
	// extend: push the current plan; otherwise activate grantTier.
	extend    bool
	grantTier contracts.Tier
}

// ladder returns the reward rules for the referrer's current tier, in
// evaluation order. Premium credits always outrank plus credits.
func (s *Service) ladder(tier contracts.Tier) []rewardRule {
	switch tier {
	case contracts.TierPremium:
		return []rewardRule{
			{creditTier: contracts.TierPremium, threshold: s.plans.PremiumPremiumThreshold, extend: true},
			{creditTier: contracts.TierPlus, threshold: s.plans.PremiumPlusThreshold, extend: true},
		}
	case contracts.TierPlus:
		return []rewardRule{
			{creditTier: contracts.TierPremium, threshold: s.plans.PlusPremiumThreshold, grantTier: contracts.TierPremium},
			{creditTier: contracts.TierPlus, threshold: s.plans.PlusPlusThreshold, extend: true},
		}
	default:
		return []rewardRule{
			{creditTier: contracts.TierPremium, threshold: s.plans.FreePremiumThreshold, grantTier: contracts.TierPremium},
			{creditTier: contracts.TierPlus, threshold: s.plans.FreePlusThreshold, grantTier: contracts.TierPlus},
		}
	}
}

// CheckRewards walks the reward ladder for the referrer's current tier
// and applies at most one reward. Consumption is conditional, so a
// concurrent check cannot spend the same credits twice, and surplus
// credits above the threshold carry over to the next reward.
func (s *Service) CheckRewards(ctx context.Context, referrerID int64) (bool, error) {
	referrer, err := s.subscribers.Get(ctx, referrerID)
	if err != nil {
		return false, fmt.Errorf("look up referrer %d: %w", referrerID, err)
	}

	now := s.now()
	if !referrer.HasAccess(now) {
		// Credits keep accumulating, rewards wait until the referrer
		// is active again.
		return false, nil
	}

	currentTier := contracts.TierFree
	if referrer.IsPlanActive(now) {
		currentTier = referrer.Tier
	}

	for _, rule := range s.ladder(currentTier) {
		consumed, err := s.subscribers.ConsumeReferralCredits(ctx, referrerID, rule.creditTier, rule.threshold)
		if err != nil {
			return false, fmt.Errorf("consume %s credits: %w", rule.creditTier, err)
		}
		if !consumed {
			continue
		}

		// Apply the reward directly: a reward never feeds back into
		// referral registration, so the cascade stays bounded.
		if rule.extend {
			err = s.subscribers.ExtendPlan(ctx, referrerID, s.plans.DurationDays)
		} else {
			err = s.subscribers.ActivatePlan(ctx, referrerID, rule.grantTier, s.plans.DurationDays)
		}
		if err != nil {
			// The reward did not land, so the spent credits go back.
			if restoreErr := s.subscribers.RestoreReferralCredits(ctx, referrerID, rule.creditTier, rule.threshold); restoreErr != nil {
				s.logger.WithError(restoreErr).WithField("referrer_id", referrerID).Error("Failed to restore credits after reward failure")
			}
			return false, fmt.Errorf("apply reward for %d: %w", referrerID, err)
		}

		s.logger.WithFields(map[string]interface{}{
			"referrer_id": referrerID,
			"credit_tier": string(rule.creditTier),
			"consumed":    rule.threshold,
			"extend":      rule.extend,
		}).Info("Referral reward applied")

		return true, nil
	}

	return false, nil
}

// ReferralStats summarizes a subscriber's referral standing.
type ReferralStats struct {
	RefCode      string
	TotalInvited int
	// Invited counts split by the tier the referred activated.
	InvitedPlus    int
	InvitedPremium int
	PlusValid      int
	PremiumValid   int
	PlusTotal      int
	PremiumTotal   int
	// NextRewards describes how far each ladder rung is.
	NextRewards []PendingReward
}

// PendingReward describes progress toward one ladder rung.
type PendingReward struct {
	CreditTier contracts.Tier
	Have       int
	Need       int
	Extend     bool
	GrantTier  contracts.Tier
}

// Stats returns the referral summary for a subscriber.
func (s *Service) Stats(ctx context.Context, id int64) (*ReferralStats, error) {
	sub, err := s.subscribers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	invited, err := s.referrals.CountByReferrer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count referrals for %d: %w", id, err)
	}
	invitedPlus, err := s.referrals.CountByReferrerAndTier(ctx, id, contracts.TierPlus)
	if err != nil {
		return nil, fmt.Errorf("count plus referrals for %d: %w", id, err)
	}
	invitedPremium, err := s.referrals.CountByReferrerAndTier(ctx, id, contracts.TierPremium)
	if err != nil {
		return nil, fmt.Errorf("count premium referrals for %d: %w", id, err)
	}

	now := s.now()
	currentTier := contracts.TierFree
	if sub.IsPlanActive(now) {
		currentTier = sub.Tier
	}

	stats := &ReferralStats{
		RefCode:        sub.RefCode,
		TotalInvited:   invited,
		InvitedPlus:    invitedPlus,
		InvitedPremium: invitedPremium,
		PlusValid:      sub.PlusValid,
		PremiumValid:   sub.PremiumValid,
		PlusTotal:      sub.PlusTotal,
		PremiumTotal:   sub.PremiumTotal,
	}
	for _, rule := range s.ladder(currentTier) {
		stats.NextRewards = append(stats.NextRewards, PendingReward{
			CreditTier: rule.creditTier,
			Have:       sub.ValidCredits(rule.creditTier),
			Need:       rule.threshold,
			Extend:     rule.extend,
			GrantTier:  rule.grantTier,
		})
	}

	return stats, nil
}
