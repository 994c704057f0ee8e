package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// SubscriberRepository persists subscribers.
type SubscriberRepository struct {
	pool *pgxpool.Pool
}

const subscriberColumns = `
	id, username, tier, trial_end, plan_end, referrer_id, ref_code,
	plus_valid, premium_valid, plus_total, premium_total,
	created_at, updated_at, last_activity`

func scanSubscriber(row pgx.Row) (*contracts.Subscriber, error) {
	var sub contracts.Subscriber
	err := row.Scan(
		&sub.ID, &sub.Username, &sub.Tier, &sub.TrialEnd, &sub.PlanEnd,
		&sub.ReferrerID, &sub.RefCode,
		&sub.PlusValid, &sub.PremiumValid, &sub.PlusTotal, &sub.PremiumTotal,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.LastActivity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	return &sub, nil
}

// Get returns one subscriber by id.
func (r *SubscriberRepository) Get(ctx context.Context, id int64) (*contracts.Subscriber, error) {
	query := `SELECT` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	return scanSubscriber(r.pool.QueryRow(ctx, query, id))
}

// Create inserts a new subscriber.
func (r *SubscriberRepository) Create(ctx context.Context, sub *contracts.Subscriber) error {
	query := `
		INSERT INTO subscribers (
			id, username, tier, trial_end, plan_end, referrer_id, ref_code,
			plus_valid, premium_valid, plus_total, premium_total,
			created_at, updated_at, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		sub.ID, sub.Username, sub.Tier, sub.TrialEnd, sub.PlanEnd,
		sub.ReferrerID, sub.RefCode,
		sub.PlusValid, sub.PremiumValid, sub.PlusTotal, sub.PremiumTotal,
		sub.CreatedAt, sub.UpdatedAt, sub.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("insert subscriber %d: %w", sub.ID, err)
	}
	return nil
}

// List returns all subscribers.
func (r *SubscriberRepository) List(ctx context.Context) ([]*contracts.Subscriber, error) {
	query := `SELECT` + subscriberColumns + ` FROM subscribers ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]*contracts.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subscribers, nil
}

// ActivatePlan starts or extends a paid plan in one statement. A still
// running plan extends from its current end, anything else restarts
// from now; the trial ends either way.
func (r *SubscriberRepository) ActivatePlan(ctx context.Context, id int64, tier contracts.Tier, days int) error {
	query := `
		UPDATE subscribers
		SET tier = $2,
		    plan_end = CASE
		        WHEN plan_end IS NOT NULL AND plan_end > NOW()
		            THEN plan_end + make_interval(days => $3)
		        ELSE NOW() + make_interval(days => $3)
		    END,
		    trial_end = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, tier, days)
	if err != nil {
		return fmt.Errorf("activate plan for %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// ExtendPlan pushes a running plan's end by the given days.
func (r *SubscriberRepository) ExtendPlan(ctx context.Context, id int64, days int) error {
	query := `
		UPDATE subscribers
		SET plan_end = plan_end + make_interval(days => $2),
		    updated_at = NOW()
		WHERE id = $1 AND plan_end IS NOT NULL AND plan_end > NOW()
	`
	tag, err := r.pool.Exec(ctx, query, id, days)
	if err != nil {
		return fmt.Errorf("extend plan for %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// ExpireDue downgrades at most limit lapsed subscribers to free.
func (r *SubscriberRepository) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	query := `
		UPDATE subscribers
		SET tier = 'free', plan_end = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM subscribers
			WHERE tier <> 'free' AND plan_end IS NOT NULL AND plan_end < $1
			LIMIT $2
		)
	`
	tag, err := r.pool.Exec(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("expire due plans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AddReferralCredits bumps the live and historical counters for a tier.
func (r *SubscriberRepository) AddReferralCredits(ctx context.Context, id int64, tier contracts.Tier) error {
	var query string
	switch tier {
	case contracts.TierPlus:
		query = `
			UPDATE subscribers
			SET plus_valid = plus_valid + 1, plus_total = plus_total + 1, updated_at = NOW()
			WHERE id = $1`
	case contracts.TierPremium:
		query = `
			UPDATE subscribers
			SET premium_valid = premium_valid + 1, premium_total = premium_total + 1, updated_at = NOW()
			WHERE id = $1`
	default:
		return fmt.Errorf("referral credits require a paid tier, got %q", tier)
	}

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("add %s credit for %d: %w", tier, id, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// ConsumeReferralCredits spends n live credits only when present. The
// WHERE guard makes concurrent consumers safe: exactly one wins.
func (r *SubscriberRepository) ConsumeReferralCredits(ctx context.Context, id int64, tier contracts.Tier, n int) (bool, error) {
	var query string
	switch tier {
	case contracts.TierPlus:
		query = `
			UPDATE subscribers
			SET plus_valid = plus_valid - $2, updated_at = NOW()
			WHERE id = $1 AND plus_valid >= $2`
	case contracts.TierPremium:
		query = `
			UPDATE subscribers
			SET premium_valid = premium_valid - $2, updated_at = NOW()
			WHERE id = $1 AND premium_valid >= $2`
	default:
		return false, fmt.Errorf("referral credits require a paid tier, got %q", tier)
	}

	tag, err := r.pool.Exec(ctx, query, id, n)
	if err != nil {
		return false, fmt.Errorf("consume %s credits for %d: %w", tier, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RestoreReferralCredits puts n live credits back after a reward that
// could not be applied. Historical totals stay as they are.
func (r *SubscriberRepository) RestoreReferralCredits(ctx context.Context, id int64, tier contracts.Tier, n int) error {
	var query string
	switch tier {
	case contracts.TierPlus:
		query = `
			UPDATE subscribers
			SET plus_valid = plus_valid + $2, updated_at = NOW()
			WHERE id = $1`
	case contracts.TierPremium:
		query = `
			UPDATE subscribers
			SET premium_valid = premium_valid + $2, updated_at = NOW()
			WHERE id = $1`
	default:
		return fmt.Errorf("referral credits require a paid tier, got %q", tier)
	}

	tag, err := r.pool.Exec(ctx, query, id, n)
	if err != nil {
		return fmt.Errorf("restore %s credits for %d: %w", tier, id, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// Touch refreshes the activity timestamp.
func (r *SubscriberRepository) Touch(ctx context.Context, id int64, now time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE subscribers SET last_activity = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("touch subscriber %d: %w", id, err)
	}
	return nil
}
