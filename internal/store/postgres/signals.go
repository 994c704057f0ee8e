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

// SignalRepository persists base signals.
type SignalRepository struct {
	pool *pgxpool.Pool
}

const signalColumns = `
	id, symbol, direction, entry_price, stop_loss, take_profits,
	timeframes, tier, score, components, entry_low, entry_high,
	eta_min, eta_max, created_at, valid_until, cooldown_until`

// Insert stores the signal with all timestamps in one statement.
func (r *SignalRepository) Insert(ctx context.Context, signal *contracts.BaseSignal) error {
	components, err := json.Marshal(signal.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	query := `
		INSERT INTO base_signals (
			id, symbol, direction, entry_price, stop_loss, take_profits,
			timeframes, tier, score, components, entry_low, entry_high,
			eta_min, eta_max, created_at, valid_until, cooldown_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.pool.Exec(ctx, query,
		signal.ID, signal.Symbol, signal.Direction, signal.EntryPrice, signal.StopLoss,
		signal.TakeProfits, signal.Timeframes, signal.Tier, signal.Score, components,
		signal.EntryZone.Low, signal.EntryZone.High,
		signal.ETA.Min, signal.ETA.Max,
		signal.CreatedAt, signal.ValidUntil, signal.CooldownUntil,
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", signal.ID, err)
	}
	return nil
}

func scanSignal(row pgx.Row) (*contracts.BaseSignal, error) {
	var signal contracts.BaseSignal
	var components []byte
	err := row.Scan(
		&signal.ID, &signal.Symbol, &signal.Direction, &signal.EntryPrice, &signal.StopLoss,
		&signal.TakeProfits, &signal.Timeframes, &signal.Tier, &signal.Score, &components,
		&signal.EntryZone.Low, &signal.EntryZone.High,
		&signal.ETA.Min, &signal.ETA.Max,
		&signal.CreatedAt, &signal.ValidUntil, &signal.CooldownUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, fmt.Errorf("scan signal: %w", err)
	}
	if err := json.Unmarshal(components, &signal.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	return &signal, nil
}

// Get returns one signal by id.
func (r *SignalRepository) Get(ctx context.Context, id uuid.UUID) (*contracts.BaseSignal, error) {
	query := `SELECT` + signalColumns + ` FROM base_signals WHERE id = $1`
	return scanSignal(r.pool.QueryRow(ctx, query, id))
}

// AnyInCooldown reports whether any cooldown window is still open.
func (r *SignalRepository) AnyInCooldown(ctx context.Context, now time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM base_signals WHERE cooldown_until > $1)`
	if err := r.pool.QueryRow(ctx, query, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return exists, nil
}

// RecentExists reports whether the triple was signalled since the
// given time.
func (r *SignalRepository) RecentExists(ctx context.Context, symbol string, direction contracts.Direction, tier contracts.Tier, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM base_signals
			WHERE symbol = $1 AND direction = $2 AND tier = $3 AND created_at >= $4
		)
	`
	if err := r.pool.QueryRow(ctx, query, symbol, direction, tier, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recent signal: %w", err)
	}
	return exists, nil
}

// ListLive returns live signals for a tier, newest first.
func (r *SignalRepository) ListLive(ctx context.Context, tier contracts.Tier, now time.Time, limit int) ([]*contracts.BaseSignal, error) {
	query := `SELECT` + signalColumns + `
		FROM base_signals
		WHERE tier = $1 AND cooldown_until > $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, tier, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query live signals: %w", err)
	}
	defer rows.Close()

	signals := make([]*contracts.BaseSignal, 0)
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, nil
}

// DeleteCreatedBefore purges old signals.
func (r *SignalRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM base_signals WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
