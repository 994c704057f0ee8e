package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// ResultRepository persists evaluated signal outcomes.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// Insert stores one outcome.
func (r *ResultRepository) Insert(ctx context.Context, result *contracts.SignalResult) error {
	query := `
		INSERT INTO signal_results (symbol, tier, outcome, evaluated_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, result.Symbol, result.Tier, result.Outcome, result.EvaluatedAt); err != nil {
		return fmt.Errorf("insert signal result: %w", err)
	}
	return nil
}

// CountSince returns outcome counts since the given time.
func (r *ResultRepository) CountSince(ctx context.Context, since time.Time) (map[contracts.SignalOutcome]int, error) {
	query := `
		SELECT outcome, COUNT(*)
		FROM signal_results
		WHERE evaluated_at >= $1
		GROUP BY outcome
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[contracts.SignalOutcome]int)
	for rows.Next() {
		var outcome contracts.SignalOutcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan result count: %w", err)
		}
		counts[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result counts: %w", err)
	}
	return counts, nil
}
