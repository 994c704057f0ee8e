package contracts

import (
	"fmt"
	"time"
)

// Tier is both a subscription plan and a signal's intended audience.
type Tier string

const (
	TierFree    Tier = "free"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPlus, TierPremium:
		return true
	}
	return false
}

// Paid reports whether the tier is a paid plan.
func (t Tier) Paid() bool {
	return t == TierPlus || t == TierPremium
}

// Subscriber is a bot user. Referrer identity is set once at first
// contact and immutable thereafter; counters never go negative.
type Subscriber struct {
	ID       int64
	Username string
	Tier     Tier

	TrialEnd *time.Time
	PlanEnd  *time.Time

	ReferrerID *int64
	RefCode    string

	// Live reward credits (consumed by the reward ladder) and
	// monotonic historical totals.
	PlusValid    int
	PremiumValid int
	PlusTotal    int
	PremiumTotal int

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
}

// NewSubscriber creates a subscriber on first contact. The trial window
// starts immediately.
func NewSubscriber(id int64, username string, referrerID *int64, trialDays int, now time.Time) (*Subscriber, error) {
	if id == 0 {
		return nil, fmt.Errorf("subscriber id must not be zero")
	}
	if referrerID != nil && *referrerID == id {
		return nil, fmt.Errorf("subscriber %d cannot refer itself", id)
	}

	trialEnd := now.Add(time.Duration(trialDays) * 24 * time.Hour)

	return &Subscriber{
		ID:           id,
		Username:     username,
		Tier:         TierFree,
		TrialEnd:     &trialEnd,
		ReferrerID:   referrerID,
		RefCode:      fmt.Sprintf("ref_%d", id),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}, nil
}

// IsTrialActive reports whether the trial window is still open.
func (s *Subscriber) IsTrialActive(now time.Time) bool {
	return s.TrialEnd != nil && !s.TrialEnd.Before(now)
}

// IsPlanActive reports whether a paid plan is still running.
func (s *Subscriber) IsPlanActive(now time.Time) bool {
	return s.PlanEnd != nil && !s.PlanEnd.Before(now)
}

// HasAccess reports whether the subscriber can currently see signals.
func (s *Subscriber) HasAccess(now time.Time) bool {
	return s.IsPlanActive(now) || s.IsTrialActive(now)
}

// ValidCredits returns the live reward credits for a paid tier.
func (s *Subscriber) ValidCredits(tier Tier) int {
	switch tier {
	case TierPlus:
		return s.PlusValid
	case TierPremium:
		return s.PremiumValid
	}
	return 0
}

// PlanStatus is a human-readable plan state.
type PlanStatus struct {
	Tier    Tier
	State   string // active, trial, expired
	Expires *time.Time
}

// Status returns the readable plan state for the subscriber.
func (s *Subscriber) Status(now time.Time) PlanStatus {
	if s.IsPlanActive(now) {
		return PlanStatus{Tier: s.Tier, State: "active", Expires: s.PlanEnd}
	}
	if s.IsTrialActive(now) {
		return PlanStatus{Tier: TierFree, State: "trial", Expires: s.TrialEnd}
	}
	return PlanStatus{Tier: TierFree, State: "expired"}
}
