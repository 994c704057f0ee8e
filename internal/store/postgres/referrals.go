package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// ReferralRepository persists the immutable referral log.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// Insert records a referral. The primary key on (referrer, referred)
// makes the double-count guard a plain ON CONFLICT DO NOTHING.
func (r *ReferralRepository) Insert(ctx context.Context, record *contracts.ReferralRecord) (bool, error) {
	query := `
		INSERT INTO referrals (referrer_id, referred_id, activated_tier, activated_at, reward_applied)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (referrer_id, referred_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		record.ReferrerID, record.ReferredID, record.ActivatedTier, record.ActivatedAt, record.RewardApplied,
	)
	if err != nil {
		return false, fmt.Errorf("insert referral %d->%d: %w", record.ReferrerID, record.ReferredID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByReferrer returns the number of recorded referrals.
func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`
	if err := r.pool.QueryRow(ctx, query, referrerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return count, nil
}

// CountByReferrerAndTier returns the referrals that activated a tier.
func (r *ReferralRepository) CountByReferrerAndTier(ctx context.Context, referrerID int64, tier contracts.Tier) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND activated_tier = $2`
	if err := r.pool.QueryRow(ctx, query, referrerID, tier).Scan(&count); err != nil {
		return 0, fmt.Errorf("count referrals by tier: %w", err)
	}
	return count, nil
}

// MarkRewardApplied flags the referral that triggered a reward.
func (r *ReferralRepository) MarkRewardApplied(ctx context.Context, referrerID, referredID int64) error {
	query := `UPDATE referrals SET reward_applied = TRUE WHERE referrer_id = $1 AND referred_id = $2`
	tag, err := r.pool.Exec(ctx, query, referrerID, referredID)
	if err != nil {
		return fmt.Errorf("mark reward applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}
