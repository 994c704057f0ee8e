package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// SubscriberSignalRepository persists per-subscriber derivations.
type SubscriberSignalRepository struct {
	pool *pgxpool.Pool
}

const derivedColumns = `
	subscriber_id, signal_id, symbol, direction, entry_price,
	entry_low, entry_high, profiles, timeframes, tier, fingerprint,
	created_at, valid_until, cooldown_until`

// Insert stores one derivation. The (subscriber, signal) pair is the
// primary key, a re-insert for a live pair indicates a deriver bug and
// surfaces as a constraint error.
func (r *SubscriberSignalRepository) Insert(ctx context.Context, signal *contracts.SubscriberSignal) error {
	profiles, err := json.Marshal(signal.Profiles)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}

	query := `
		INSERT INTO subscriber_signals (
			subscriber_id, signal_id, symbol, direction, entry_price,
			entry_low, entry_high, profiles, timeframes, tier, fingerprint,
			created_at, valid_until, cooldown_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (subscriber_id, signal_id) DO UPDATE SET
			entry_price = EXCLUDED.entry_price,
			entry_low = EXCLUDED.entry_low,
			entry_high = EXCLUDED.entry_high,
			profiles = EXCLUDED.profiles,
			fingerprint = EXCLUDED.fingerprint,
			created_at = EXCLUDED.created_at,
			valid_until = EXCLUDED.valid_until,
			cooldown_until = EXCLUDED.cooldown_until
	`
	_, err = r.pool.Exec(ctx, query,
		signal.SubscriberID, signal.SignalID, signal.Symbol, signal.Direction, signal.EntryPrice,
		signal.EntryZone.Low, signal.EntryZone.High, profiles, signal.Timeframes,
		signal.Tier, signal.Fingerprint,
		signal.CreatedAt, signal.ValidUntil, signal.CooldownUntil,
	)
	if err != nil {
		return fmt.Errorf("insert derived signal: %w", err)
	}
	return nil
}

func scanDerived(row pgx.Row) (*contracts.SubscriberSignal, error) {
	var signal contracts.SubscriberSignal
	var profiles []byte
	err := row.Scan(
		&signal.SubscriberID, &signal.SignalID, &signal.Symbol, &signal.Direction, &signal.EntryPrice,
		&signal.EntryZone.Low, &signal.EntryZone.High, &profiles, &signal.Timeframes,
		&signal.Tier, &signal.Fingerprint,
		&signal.CreatedAt, &signal.ValidUntil, &signal.CooldownUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, fmt.Errorf("scan derived signal: %w", err)
	}
	if err := json.Unmarshal(profiles, &signal.Profiles); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	return &signal, nil
}

// FindLive returns the live derivation for a pair.
func (r *SubscriberSignalRepository) FindLive(ctx context.Context, subscriberID int64, signalID uuid.UUID, now time.Time) (*contracts.SubscriberSignal, error) {
	query := `SELECT` + derivedColumns + `
		FROM subscriber_signals
		WHERE subscriber_id = $1 AND signal_id = $2 AND cooldown_until > $3`
	return scanDerived(r.pool.QueryRow(ctx, query, subscriberID, signalID, now))
}

// ListLiveForSubscriber returns the subscriber's live derivations for a
// tier, newest first.
func (r *SubscriberSignalRepository) ListLiveForSubscriber(ctx context.Context, subscriberID int64, tier contracts.Tier, now time.Time, limit int) ([]*contracts.SubscriberSignal, error) {
	query := `SELECT` + derivedColumns + `
		FROM subscriber_signals
		WHERE subscriber_id = $1 AND tier = $2 AND cooldown_until > $3
		ORDER BY created_at DESC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, subscriberID, tier, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query derived signals: %w", err)
	}
	defer rows.Close()

	signals := make([]*contracts.SubscriberSignal, 0)
	for rows.Next() {
		signal, err := scanDerived(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate derived signals: %w", err)
	}
	return signals, nil
}

// DeleteCreatedBefore purges old derivations.
func (r *SubscriberSignalRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriber_signals WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge derived signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
