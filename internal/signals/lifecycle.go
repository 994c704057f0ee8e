package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

var (
	// ErrCooldownActive means a prior signal's cooldown window is still
	// open, so no new signal may be created anywhere.
	ErrCooldownActive = errors.New("signal cooldown active")

	// ErrDuplicate means an equivalent signal was created too recently.
	ErrDuplicate = errors.New("duplicate signal within dedup window")
)

const (
	entryZonePct = 0.0015

	stopLossPct    = 0.01
	takeProfit1Pct = 0.01
	takeProfit2Pct = 0.02

	// Expected per-candle price drift by base timeframe, used for the
	// entry time estimate.
	speed5m      = 0.004
	speed15m     = 0.0025
	speedDefault = 0.0015
)

// scanTimeframes is the fixed multi-timeframe set every signal carries,
// shortest first.
var scanTimeframes = []string{"5M", "15M", "1H"}

// Manager owns base signal creation: it applies the global cooldown and
// dedup gates, computes levels and the entry estimate, and persists the
// signal in a single insert.
type Manager struct {
	signals contracts.SignalRepository
	market  contracts.MarketData
	logger  *logger.Logger

	dedupWindow time.Duration
	cooldown    time.Duration

	now func() time.Time
}

// NewManager creates a signal lifecycle manager.
func NewManager(cfg *config.Config, log *logger.Logger, repo contracts.SignalRepository, market contracts.MarketData) *Manager {
	return &Manager{
		signals:     repo,
		market:      market,
		logger:      log,
		dedupWindow: cfg.Signals.DedupWindow,
		cooldown:    cfg.Signals.Cooldown,
		now:         time.Now,
	}
}

// Create turns a ranked candidate into a persisted base signal. It
// returns ErrCooldownActive while any signal's cooldown is open and
// ErrDuplicate when the same (symbol, direction, tier) was signalled
// within the dedup window.
func (m *Manager) Create(ctx context.Context, cand contracts.Candidate, tier contracts.Tier) (*contracts.BaseSignal, error) {
	now := m.now()

	inCooldown, err := m.signals.AnyInCooldown(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("check cooldown: %w", err)
	}
	if inCooldown {
		return nil, ErrCooldownActive
	}

	return m.create(ctx, cand, tier, now)
}

// InCooldown reports whether the global creation gate is closed. The
// scanner consults it before spending market requests on a cycle.
func (m *Manager) InCooldown(ctx context.Context) (bool, error) {
	return m.signals.AnyInCooldown(ctx, m.now())
}

// CreateBatch persists one cycle's ranked selection. The cooldown gate
// is evaluated once against the state before the batch, so the batch
// members do not suppress each other; the dedup gate still applies per
// candidate, skipped triples are dropped silently.
func (m *Manager) CreateBatch(ctx context.Context, selection []RankedCandidate) ([]*contracts.BaseSignal, error) {
	now := m.now()

	inCooldown, err := m.signals.AnyInCooldown(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("check cooldown: %w", err)
	}
	if inCooldown {
		return nil, ErrCooldownActive
	}

	created := make([]*contracts.BaseSignal, 0, len(selection))
	for _, ranked := range selection {
		signal, err := m.create(ctx, ranked.Candidate, ranked.Tier, now)
		if errors.Is(err, ErrDuplicate) {
			m.logger.WithFields(map[string]interface{}{
				"symbol":    ranked.Candidate.Symbol,
				"direction": string(ranked.Candidate.Direction),
				"tier":      string(ranked.Tier),
			}).Debug("Skipping duplicate signal")
			continue
		}
		if err != nil {
			// Persistence failures cost one signal, not the cycle.
			m.logger.WithError(err).WithField("symbol", ranked.Candidate.Symbol).Error("Failed to create signal")
			continue
		}
		created = append(created, signal)
	}

	return created, nil
}

// RankedCandidate pairs a candidate with its assigned audience tier.
type RankedCandidate struct {
	Candidate contracts.Candidate
	Tier      contracts.Tier
}

func (m *Manager) create(ctx context.Context, cand contracts.Candidate, tier contracts.Tier, now time.Time) (*contracts.BaseSignal, error) {
	exists, err := m.signals.RecentExists(ctx, cand.Symbol, cand.Direction, tier, now.Add(-m.dedupWindow))
	if err != nil {
		return nil, fmt.Errorf("check dedup: %w", err)
	}
	if exists {
		return nil, ErrDuplicate
	}

	entry := round4(cand.EntryPrice)
	zone := contracts.PriceZone{
		Low:  round4(entry * (1 - entryZonePct)),
		High: round4(entry * (1 + entryZonePct)),
	}

	validity := maxTimeframeMinutes(scanTimeframes)

	signal := &contracts.BaseSignal{
		ID:            uuid.New(),
		Symbol:        cand.Symbol,
		Direction:     cand.Direction,
		EntryPrice:    entry,
		StopLoss:      stopLoss(entry, cand.Direction),
		TakeProfits:   takeProfits(entry, cand.Direction),
		Timeframes:    scanTimeframes,
		Tier:          tier,
		Score:         cand.Score,
		Components:    cand.Components,
		EntryZone:     zone,
		ETA:           m.estimateEntry(ctx, cand.Symbol, zone, validity),
		CreatedAt:     now,
		ValidUntil:    now.Add(time.Duration(validity) * time.Minute),
		CooldownUntil: now.Add(m.cooldown),
	}

	if err := m.signals.Insert(ctx, signal); err != nil {
		return nil, fmt.Errorf("persist signal: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID.String(),
		"symbol":    signal.Symbol,
		"direction": string(signal.Direction),
		"tier":      string(signal.Tier),
		"score":     signal.Score,
	}).Info("Base signal created")

	return signal, nil
}

// estimateEntry predicts how many minutes until price reaches the entry
// zone. A current-price fetch failure degrades to a window derived from
// the validity span rather than failing signal creation.
func (m *Manager) estimateEntry(ctx context.Context, symbol string, zone contracts.PriceZone, validityMinutes int) contracts.EntryEstimate {
	price, err := m.market.LastPrice(ctx, symbol)
	if err != nil || price <= 0 {
		if err != nil {
			m.logger.WithError(err).WithField("symbol", symbol).Warn("Entry estimate falling back to validity window")
		}
		return contracts.EntryEstimate{Min: validityMinutes / 2, Max: validityMinutes * 3 / 2}
	}

	if zone.Contains(price) {
		return contracts.EntryEstimate{Min: 1, Max: 5}
	}

	distancePct := math.Abs(price-zone.Mid()) / zone.Mid()

	baseMinutes := timeframeMinutes(scanTimeframes[0])
	candles := distancePct / speedFor(scanTimeframes[0])
	minutes := candles * float64(baseMinutes)

	low := int(math.Max(1, math.Round(minutes*0.6)))
	high := int(math.Max(float64(low+1), math.Round(minutes*1.4)))
	return contracts.EntryEstimate{Min: low, Max: high}
}

func stopLoss(entry float64, dir contracts.Direction) float64 {
	if dir == contracts.DirectionLong {
		return round4(entry * (1 - stopLossPct))
	}
	return round4(entry * (1 + stopLossPct))
}

func takeProfits(entry float64, dir contracts.Direction) []float64 {
	if dir == contracts.DirectionLong {
		return []float64{
			round4(entry * (1 + takeProfit1Pct)),
			round4(entry * (1 + takeProfit2Pct)),
		}
	}
	return []float64{
		round4(entry * (1 - takeProfit1Pct)),
		round4(entry * (1 - takeProfit2Pct)),
	}
}

func speedFor(timeframe string) float64 {
	switch timeframe {
	case "5M":
		return speed5m
	case "15M":
		return speed15m
	}
	return speedDefault
}

func timeframeMinutes(timeframe string) int {
	switch timeframe {
	case "5M":
		return 5
	case "15M":
		return 15
	case "1H":
		return 60
	case "4H":
		return 240
	}
	return 60
}

func maxTimeframeMinutes(timeframes []string) int {
	maxMin := 0
	for _, tf := range timeframes {
		if m := timeframeMinutes(tf); m > maxMin {
			maxMin = m
		}
	}
	return maxMin
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
