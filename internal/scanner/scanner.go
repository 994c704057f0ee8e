// Package scanner runs the periodic multi-timeframe market scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/selection"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/internal/strategy"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// intervals maps our timeframe labels to Binance kline intervals.
var intervals = map[string]string{
	"1H":  "1h",
	"15M": "15m",
	"5M":  "5m",
}

// Distributor fans accepted signals out to subscribers.
type Distributor interface {
	Distribute(ctx context.Context, base *contracts.BaseSignal) (int, error)
}

// Scanner drives the scan cycle: symbol universe, per-symbol scoring,
// ranking, signal creation and distribution.
type Scanner struct {
	market      contracts.MarketData
	ranker      *selection.Ranker
	manager     *signals.Manager
	distributor Distributor
	logger      *logger.Logger

	interval       time.Duration
	errorBackoff   time.Duration
	minQuoteVolume float64
	candleLimit    int
}

// New creates a scanner.
func New(cfg *config.Config, log *logger.Logger, market contracts.MarketData, ranker *selection.Ranker, manager *signals.Manager, distributor Distributor) *Scanner {
	return &Scanner{
		market:         market,
		ranker:         ranker,
		manager:        manager,
		distributor:    distributor,
		logger:         log,
		interval:       cfg.Scanner.Interval,
		errorBackoff:   cfg.Scanner.ErrorBackoff,
		minQuoteVolume: cfg.Scanner.MinQuoteVolume,
		candleLimit:    cfg.Scanner.CandleLimit,
	}
}

// Run scans until ctx is cancelled. A failed cycle backs off for the
// configured duration instead of the full interval; nothing short of
// cancellation stops the loop.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("Scanner started")

	for {
		wait := s.interval
		if err := s.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, signals.ErrCooldownActive) {
				s.logger.Debug("Signal cooldown active, skipping cycle")
			} else {
				s.logger.WithError(err).Error("Scan cycle failed")
				wait = s.errorBackoff
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scanner stopped")
			return
		case <-time.After(wait):
		}
	}

	s.logger.Info("Scanner stopped")
}

// Scan executes one full cycle. The global cooldown is checked before
// any market request so a blocked cycle costs nothing upstream.
func (s *Scanner) Scan(ctx context.Context) error {
	started := time.Now()

	inCooldown, err := s.manager.InCooldown(ctx)
	if err != nil {
		return fmt.Errorf("check cooldown: %w", err)
	}
	if inCooldown {
		return signals.ErrCooldownActive
	}

	symbols, err := s.market.ListActiveSymbols(ctx, s.minQuoteVolume)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}

	candidates := make([]contracts.Candidate, 0, len(symbols))
	scanned := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cand, err := s.evaluateSymbol(ctx, symbol)
		if err != nil {
			// One broken symbol must not sink the cycle.
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Symbol evaluation failed")
			continue
		}
		scanned++
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	ranked := s.ranker.Rank(candidates)
	if ranked == nil {
		s.logger.WithFields(map[string]interface{}{
			"scanned":    scanned,
			"candidates": len(candidates),
			"duration":   time.Since(started).String(),
		}).Info("Scan cycle finished without selection")
		return nil
	}

	batch := make([]signals.RankedCandidate, 0, len(ranked))
	for _, r := range ranked {
		batch = append(batch, signals.RankedCandidate{Candidate: r.Candidate, Tier: r.Tier})
	}

	created, err := s.manager.CreateBatch(ctx, batch)
	if err != nil {
		return err
	}

	for _, signal := range created {
		if _, err := s.distributor.Distribute(ctx, signal); err != nil {
			s.logger.WithError(err).WithField("signal_id", signal.ID.String()).Error("Distribution failed")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"scanned":    scanned,
		"candidates": len(candidates),
		"created":    len(created),
		"duration":   time.Since(started).String(),
	}).Info("Scan cycle finished")

	return nil
}

// evaluateSymbol fetches the three timeframes and scores the symbol.
// A nil candidate means no setup.
func (s *Scanner) evaluateSymbol(ctx context.Context, symbol string) (*contracts.Candidate, error) {
	long, err := s.market.GetCandles(ctx, symbol, intervals["1H"], s.candleLimit)
	if err != nil {
		return nil, fmt.Errorf("1h candles: %w", err)
	}
	med, err := s.market.GetCandles(ctx, symbol, intervals["15M"], s.candleLimit)
	if err != nil {
		return nil, fmt.Errorf("15m candles: %w", err)
	}
	short, err := s.market.GetCandles(ctx, symbol, intervals["5M"], s.candleLimit)
	if err != nil {
		return nil, fmt.Errorf("5m candles: %w", err)
	}

	cand := strategy.Evaluate(long, med, short)
	if cand != nil {
		cand.Symbol = symbol
	}
	return cand, nil
}
