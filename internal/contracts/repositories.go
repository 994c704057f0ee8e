package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// SubscriberRepository stores subscribers. Read-modify-write plan and
// counter transitions are single atomic updates against one row.
type SubscriberRepository interface {
	Get(ctx context.Context, id int64) (*Subscriber, error)
	Create(ctx context.Context, sub *Subscriber) error
	List(ctx context.Context) ([]*Subscriber, error)

	// ActivatePlan sets the tier, extends plan_end when a plan is
	// still running (otherwise starts from now), and clears the trial.
	ActivatePlan(ctx context.Context, id int64, tier Tier, days int) error

	// ExtendPlan pushes plan_end by the given days. Returns
	// ErrNotFound when no active plan exists.
	ExtendPlan(ctx context.Context, id int64, days int) error

	// ExpireDue resets at most limit subscribers whose paid plan has
	// lapsed back to the free tier. Returns the number reset.
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)

	// AddReferralCredits increments the live and historical counters
	// for the given paid tier.
	AddReferralCredits(ctx context.Context, id int64, tier Tier) error

	// ConsumeReferralCredits decrements the live counter by n only
	// when at least n credits are present. Returns false otherwise.
	ConsumeReferralCredits(ctx context.Context, id int64, tier Tier, n int) (bool, error)

	// RestoreReferralCredits returns n credits to the live counter
	// without touching the historical total. Undoes a consume whose
	// reward could not be applied.
	RestoreReferralCredits(ctx context.Context, id int64, tier Tier, n int) error

	Touch(ctx context.Context, id int64, now time.Time) error
}

// SignalRepository stores base signals.
type SignalRepository interface {
	Insert(ctx context.Context, signal *BaseSignal) error
	Get(ctx context.Context, id uuid.UUID) (*BaseSignal, error)

	// AnyInCooldown reports whether any base signal's cooldown window
	// is still open at now. Drives the global creation gate.
	AnyInCooldown(ctx context.Context, now time.Time) (bool, error)

	// RecentExists reports whether a base signal for the exact
	// (symbol, direction, tier) triple was created at or after since.
	RecentExists(ctx context.Context, symbol string, direction Direction, tier Tier, since time.Time) (bool, error)

	// ListLive returns live signals for a tier, newest first.
	ListLive(ctx context.Context, tier Tier, now time.Time, limit int) ([]*BaseSignal, error)

	// DeleteCreatedBefore purges signals older than the cutoff and
	// returns the number removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SubscriberSignalRepository stores derived per-subscriber signals.
type SubscriberSignalRepository interface {
	Insert(ctx context.Context, signal *SubscriberSignal) error

	// FindLive returns the live derivation for a (signal, subscriber)
	// pair, or ErrNotFound.
	FindLive(ctx context.Context, subscriberID int64, signalID uuid.UUID, now time.Time) (*SubscriberSignal, error)

	// ListLiveForSubscriber returns the subscriber's live derivations
	// for a tier, newest first.
	ListLiveForSubscriber(ctx context.Context, subscriberID int64, tier Tier, now time.Time, limit int) ([]*SubscriberSignal, error)

	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ReferralRepository stores referral records.
type ReferralRepository interface {
	// Insert records the referral. Returns false without error when
	// the (referrer, referred) pair already exists.
	Insert(ctx context.Context, record *ReferralRecord) (bool, error)

	CountByReferrer(ctx context.Context, referrerID int64) (int, error)
	CountByReferrerAndTier(ctx context.Context, referrerID int64, tier Tier) (int, error)
	MarkRewardApplied(ctx context.Context, referrerID, referredID int64) error
}

// ResultRepository stores signal outcomes for the win/loss counters.
type ResultRepository interface {
	Insert(ctx context.Context, result *SignalResult) error
	CountSince(ctx context.Context, since time.Time) (map[SignalOutcome]int, error)
}
