// Package postgres implements the repositories on PostgreSQL. Every
// read-modify-write plan or counter transition is a single conditional
// UPDATE so concurrent writers cannot lose updates.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// Store bundles the repositories sharing one connection pool.
type Store struct {
	pool *pgxpool.Pool

	subscribers *SubscriberRepository
	signals     *SignalRepository
	derived     *SubscriberSignalRepository
	referrals   *ReferralRepository
	results     *ResultRepository
}

// New creates the store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:        pool,
		subscribers: &SubscriberRepository{pool: pool},
		signals:     &SignalRepository{pool: pool},
		derived:     &SubscriberSignalRepository{pool: pool},
		referrals:   &ReferralRepository{pool: pool},
		results:     &ResultRepository{pool: pool},
	}
}

// Subscribers returns the subscriber repository.
func (s *Store) Subscribers() contracts.SubscriberRepository { return s.subscribers }

// Signals returns the base signal repository.
func (s *Store) Signals() contracts.SignalRepository { return s.signals }

// SubscriberSignals returns the derived signal repository.
func (s *Store) SubscriberSignals() contracts.SubscriberSignalRepository { return s.derived }

// Referrals returns the referral repository.
func (s *Store) Referrals() contracts.ReferralRepository { return s.referrals }

// Results returns the signal result repository.
func (s *Store) Results() contracts.ResultRepository { return s.results }

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			id             BIGINT PRIMARY KEY,
			username       TEXT NOT NULL DEFAULT '',
			tier           TEXT NOT NULL DEFAULT 'free',
			trial_end      TIMESTAMPTZ,
			plan_end       TIMESTAMPTZ,
			referrer_id    BIGINT,
			ref_code       TEXT NOT NULL,
			plus_valid     INT NOT NULL DEFAULT 0,
			premium_valid  INT NOT NULL DEFAULT 0,
			plus_total     INT NOT NULL DEFAULT 0,
			premium_total  INT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS base_signals (
			id             UUID PRIMARY KEY,
			symbol         TEXT NOT NULL,
			direction      TEXT NOT NULL,
			entry_price    DOUBLE PRECISION NOT NULL,
			stop_loss      DOUBLE PRECISION NOT NULL,
			take_profits   DOUBLE PRECISION[] NOT NULL,
			timeframes     TEXT[] NOT NULL,
			tier           TEXT NOT NULL,
			score          DOUBLE PRECISION NOT NULL,
			components     JSONB NOT NULL DEFAULT '[]',
			entry_low      DOUBLE PRECISION NOT NULL,
			entry_high     DOUBLE PRECISION NOT NULL,
			eta_min        INT NOT NULL,
			eta_max        INT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			valid_until    TIMESTAMPTZ NOT NULL,
			cooldown_until TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS base_signals_cooldown_idx ON base_signals (cooldown_until)`,
		`CREATE INDEX IF NOT EXISTS base_signals_dedup_idx ON base_signals (symbol, direction, tier, created_at)`,
		`CREATE TABLE IF NOT EXISTS subscriber_signals (
			subscriber_id  BIGINT NOT NULL,
			signal_id      UUID NOT NULL,
			symbol         TEXT NOT NULL,
			direction      TEXT NOT NULL,
			entry_price    DOUBLE PRECISION NOT NULL,
			entry_low      DOUBLE PRECISION NOT NULL,
			entry_high     DOUBLE PRECISION NOT NULL,
			profiles       JSONB NOT NULL,
			timeframes     TEXT[] NOT NULL,
			tier           TEXT NOT NULL,
			fingerprint    TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			valid_until    TIMESTAMPTZ NOT NULL,
			cooldown_until TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (subscriber_id, signal_id)
		)`,
		`CREATE TABLE IF NOT EXISTS referrals (
			referrer_id    BIGINT NOT NULL,
			referred_id    BIGINT NOT NULL,
			activated_tier TEXT NOT NULL,
			activated_at   TIMESTAMPTZ NOT NULL,
			reward_applied BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (referrer_id, referred_id)
		)`,
		`CREATE TABLE IF NOT EXISTS signal_results (
			id           BIGSERIAL PRIMARY KEY,
			symbol       TEXT NOT NULL,
			tier         TEXT NOT NULL,
			outcome      TEXT NOT NULL,
			evaluated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS signal_results_evaluated_idx ON signal_results (evaluated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
