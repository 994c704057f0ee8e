// Package memory provides in-memory repository implementations used by
// tests; the running system uses the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// Store bundles all in-memory repositories behind one mutex.
type Store struct {
	mu sync.Mutex

	subscribers map[int64]*contracts.Subscriber
	signals     map[uuid.UUID]*contracts.BaseSignal
	derived     map[derivedKey]*contracts.SubscriberSignal
	referrals   map[referralKey]*contracts.ReferralRecord
	results     []*contracts.SignalResult
}

type derivedKey struct {
	subscriberID int64
	signalID     uuid.UUID
}

type referralKey struct {
	referrerID int64
	referredID int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		subscribers: make(map[int64]*contracts.Subscriber),
		signals:     make(map[uuid.UUID]*contracts.BaseSignal),
		derived:     make(map[derivedKey]*contracts.SubscriberSignal),
		referrals:   make(map[referralKey]*contracts.ReferralRecord),
	}
}

// Subscribers returns the subscriber repository view of the store.
func (s *Store) Subscribers() contracts.SubscriberRepository { return (*subscriberRepo)(s) }

// Signals returns the base signal repository view of the store.
func (s *Store) Signals() contracts.SignalRepository { return (*signalRepo)(s) }

// SubscriberSignals returns the derived signal repository view.
func (s *Store) SubscriberSignals() contracts.SubscriberSignalRepository {
	return (*subscriberSignalRepo)(s)
}

// Referrals returns the referral repository view of the store.
func (s *Store) Referrals() contracts.ReferralRepository { return (*referralRepo)(s) }

// Results returns the signal result repository view of the store.
func (s *Store) Results() contracts.ResultRepository { return (*resultRepo)(s) }

type subscriberRepo Store

func (r *subscriberRepo) Get(_ context.Context, id int64) (*contracts.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

func (r *subscriberRepo) Create(_ context.Context, sub *contracts.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *sub
	r.subscribers[sub.ID] = &clone
	return nil
}

func (r *subscriberRepo) List(_ context.Context) ([]*contracts.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*contracts.Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		clone := *sub
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *subscriberRepo) ActivatePlan(_ context.Context, id int64, tier contracts.Tier, days int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok {
		return contracts.ErrNotFound
	}
	now := time.Now()
	start := now
	if sub.PlanEnd != nil && sub.PlanEnd.After(now) {
		start = *sub.PlanEnd
	}
	end := start.Add(time.Duration(days) * 24 * time.Hour)
	sub.Tier = tier
	sub.PlanEnd = &end
	sub.TrialEnd = nil
	sub.UpdatedAt = now
	return nil
}

func (r *subscriberRepo) ExtendPlan(_ context.Context, id int64, days int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok || sub.PlanEnd == nil || sub.PlanEnd.Before(time.Now()) {
		return contracts.ErrNotFound
	}
	end := sub.PlanEnd.Add(time.Duration(days) * 24 * time.Hour)
	sub.PlanEnd = &end
	sub.UpdatedAt = time.Now()
	return nil
}

func (r *subscriberRepo) ExpireDue(_ context.Context, now time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := 0
	for _, sub := range r.subscribers {
		if expired >= limit {
			break
		}
		if sub.Tier != contracts.TierFree && sub.PlanEnd != nil && sub.PlanEnd.Before(now) {
			sub.Tier = contracts.TierFree
			sub.PlanEnd = nil
			sub.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func (r *subscriberRepo) AddReferralCredits(_ context.Context, id int64, tier contracts.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok {
		return contracts.ErrNotFound
	}
	switch tier {
	case contracts.TierPlus:
		sub.PlusValid++
		sub.PlusTotal++
	case contracts.TierPremium:
		sub.PremiumValid++
		sub.PremiumTotal++
	}
	return nil
}

func (r *subscriberRepo) ConsumeReferralCredits(_ context.Context, id int64, tier contracts.Tier, n int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok {
		return false, contracts.ErrNotFound
	}
	switch tier {
	case contracts.TierPlus:
		if sub.PlusValid < n {
			return false, nil
		}
		sub.PlusValid -= n
	case contracts.TierPremium:
		if sub.PremiumValid < n {
			return false, nil
		}
		sub.PremiumValid -= n
	default:
		return false, nil
	}
	return true, nil
}

func (r *subscriberRepo) RestoreReferralCredits(_ context.Context, id int64, tier contracts.Tier, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscribers[id]
	if !ok {
		return contracts.ErrNotFound
	}
	switch tier {
	case contracts.TierPlus:
		sub.PlusValid += n
	case contracts.TierPremium:
		sub.PremiumValid += n
	}
	return nil
}

func (r *subscriberRepo) Touch(_ context.Context, id int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subscribers[id]; ok {
		sub.LastActivity = now
	}
	return nil
}

type signalRepo Store

func (r *signalRepo) Insert(_ context.Context, signal *contracts.BaseSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *signal
	r.signals[signal.ID] = &clone
	return nil
}

func (r *signalRepo) Get(_ context.Context, id uuid.UUID) (*contracts.BaseSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal, ok := r.signals[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	clone := *signal
	return &clone, nil
}

func (r *signalRepo) AnyInCooldown(_ context.Context, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, signal := range r.signals {
		if signal.CooldownUntil.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *signalRepo) RecentExists(_ context.Context, symbol string, direction contracts.Direction, tier contracts.Tier, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, signal := range r.signals {
		if signal.Symbol == symbol && signal.Direction == direction && signal.Tier == tier && !signal.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *signalRepo) ListLive(_ context.Context, tier contracts.Tier, now time.Time, limit int) ([]*contracts.BaseSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*contracts.BaseSignal
	for _, signal := range r.signals {
		if signal.Tier == tier && signal.Live(now) {
			clone := *signal
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *signalRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, signal := range r.signals {
		if signal.CreatedAt.Before(cutoff) {
			delete(r.signals, id)
			deleted++
		}
	}
	return deleted, nil
}

type subscriberSignalRepo Store

func (r *subscriberSignalRepo) Insert(_ context.Context, signal *contracts.SubscriberSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *signal
	r.derived[derivedKey{signal.SubscriberID, signal.SignalID}] = &clone
	return nil
}

func (r *subscriberSignalRepo) FindLive(_ context.Context, subscriberID int64, signalID uuid.UUID, now time.Time) (*contracts.SubscriberSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal, ok := r.derived[derivedKey{subscriberID, signalID}]
	if !ok || !signal.CooldownUntil.After(now) {
		return nil, contracts.ErrNotFound
	}
	clone := *signal
	return &clone, nil
}

func (r *subscriberSignalRepo) ListLiveForSubscriber(_ context.Context, subscriberID int64, tier contracts.Tier, now time.Time, limit int) ([]*contracts.SubscriberSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*contracts.SubscriberSignal
	for _, signal := range r.derived {
		if signal.SubscriberID == subscriberID && signal.Tier == tier && signal.CooldownUntil.After(now) {
			clone := *signal
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *subscriberSignalRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for key, signal := range r.derived {
		if signal.CreatedAt.Before(cutoff) {
			delete(r.derived, key)
			deleted++
		}
	}
	return deleted, nil
}

type referralRepo Store

func (r *referralRepo) Insert(_ context.Context, record *contracts.ReferralRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := referralKey{record.ReferrerID, record.ReferredID}
	if _, exists := r.referrals[key]; exists {
		return false, nil
	}
	clone := *record
	r.referrals[key] = &clone
	return true, nil
}

func (r *referralRepo) CountByReferrer(_ context.Context, referrerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key := range r.referrals {
		if key.referrerID == referrerID {
			count++
		}
	}
	return count, nil
}

func (r *referralRepo) CountByReferrerAndTier(_ context.Context, referrerID int64, tier contracts.Tier) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key, record := range r.referrals {
		if key.referrerID == referrerID && record.ActivatedTier == tier {
			count++
		}
	}
	return count, nil
}

func (r *referralRepo) MarkRewardApplied(_ context.Context, referrerID, referredID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.referrals[referralKey{referrerID, referredID}]
	if !ok {
		return contracts.ErrNotFound
	}
	record.RewardApplied = true
	return nil
}

type resultRepo Store

func (r *resultRepo) Insert(_ context.Context, result *contracts.SignalResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *result
	r.results = append(r.results, &clone)
	return nil
}

func (r *resultRepo) CountSince(_ context.Context, since time.Time) (map[contracts.SignalOutcome]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[contracts.SignalOutcome]int)
	for _, result := range r.results {
		if !result.EvaluatedAt.Before(since) {
			counts[result.Outcome]++
		}
	}
	return counts, nil
}
