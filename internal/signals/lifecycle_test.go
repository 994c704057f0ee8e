package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/store/memory"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

type fakeMarket struct {
	price    float64
	priceErr error
}

func (f *fakeMarket) ListActiveSymbols(context.Context, float64) ([]string, error) {
	return nil, nil
}

func (f *fakeMarket) GetCandles(context.Context, string, string, int) ([]contracts.Candle, error) {
	return nil, nil
}

func (f *fakeMarket) LastPrice(context.Context, string) (float64, error) {
	return f.price, f.priceErr
}

func testConfig() *config.Config {
	return &config.Config{
		Signals: config.SignalConfig{
			DedupWindow: 10 * time.Minute,
			Cooldown:    15 * time.Minute,
		},
	}
}

func newTestManager(market contracts.MarketData) (*Manager, *memory.Store) {
	store := memory.New()
	mgr := NewManager(testConfig(), logger.NewNop(), store.Signals(), market)
	return mgr, store
}

func candidate() contracts.Candidate {
	return contracts.Candidate{
		Symbol:     "BTCUSDT",
		Direction:  contracts.DirectionLong,
		EntryPrice: 50000,
		Score:      95,
		Components: []contracts.ScoreComponent{{Rule: "trend_1h", Points: 35}},
	}
}

func TestCreateComputesLevels(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50000})

	signal, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, signal.EntryPrice)
	assert.Equal(t, 49500.0, signal.StopLoss)
	assert.Equal(t, []float64{50500.0, 51000.0}, signal.TakeProfits)
	assert.Equal(t, 49925.0, signal.EntryZone.Low)
	assert.Equal(t, 50075.0, signal.EntryZone.High)
	assert.Equal(t, contracts.TierPremium, signal.Tier)
	assert.Equal(t, []string{"5M", "15M", "1H"}, signal.Timeframes)

	// Validity follows the longest timeframe, cooldown the config.
	assert.Equal(t, time.Hour, signal.ValidUntil.Sub(signal.CreatedAt))
	assert.Equal(t, 15*time.Minute, signal.CooldownUntil.Sub(signal.CreatedAt))
}

func TestCreateShortMirrorsLevels(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50000})

	cand := candidate()
	cand.Direction = contracts.DirectionShort

	signal, err := mgr.Create(context.Background(), cand, contracts.TierPlus)
	require.NoError(t, err)

	assert.Equal(t, 50500.0, signal.StopLoss)
	assert.Equal(t, []float64{49500.0, 49000.0}, signal.TakeProfits)
}

func TestCreateRefusesDuringCooldown(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50000})

	_, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	other := candidate()
	other.Symbol = "ETHUSDT"
	_, err = mgr.Create(context.Background(), other, contracts.TierPlus)
	assert.ErrorIs(t, err, ErrCooldownActive)
}

func TestCreateDedupsTriple(t *testing.T) {
	// A dedup window longer than the cooldown so the triple gate is
	// what rejects, not the global gate.
	cfg := testConfig()
	cfg.Signals.DedupWindow = 30 * time.Minute
	store := memory.New()
	mgr := NewManager(cfg, logger.NewNop(), store.Signals(), &fakeMarket{price: 50000})

	base := time.Now()
	mgr.now = func() time.Time { return base }

	_, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	// Past the cooldown but inside the dedup window for the triple.
	mgr.now = func() time.Time { return base.Add(16 * time.Minute) }
	_, err = mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	assert.ErrorIs(t, err, ErrDuplicate)

	// A different direction is a different triple.
	short := candidate()
	short.Direction = contracts.DirectionShort
	_, err = mgr.Create(context.Background(), short, contracts.TierPremium)
	require.NoError(t, err)
}

func TestCreateAllowsAfterDedupWindow(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50000})

	base := time.Now()
	mgr.now = func() time.Time { return base }

	_, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(21 * time.Minute) }
	_, err = mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)
}

func TestCreateBatchMembersDoNotGateEachOther(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50000})

	batch := []RankedCandidate{
		{Candidate: candidate(), Tier: contracts.TierPremium},
		{Candidate: contracts.Candidate{Symbol: "ETHUSDT", Direction: contracts.DirectionShort, EntryPrice: 3000, Score: 88}, Tier: contracts.TierPlus},
		{Candidate: contracts.Candidate{Symbol: "SOLUSDT", Direction: contracts.DirectionLong, EntryPrice: 150, Score: 80}, Tier: contracts.TierFree},
	}

	created, err := mgr.CreateBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, created, 3)

	// The batch as a whole arms the global gate for the next cycle.
	_, err = mgr.CreateBatch(context.Background(), batch)
	assert.ErrorIs(t, err, ErrCooldownActive)
}

func TestCreateBatchSkipsDuplicates(t *testing.T) {
	cfg := testConfig()
	cfg.Signals.DedupWindow = 30 * time.Minute
	store := memory.New()
	mgr := NewManager(cfg, logger.NewNop(), store.Signals(), &fakeMarket{price: 50000})

	base := time.Now()
	mgr.now = func() time.Time { return base }

	_, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(16 * time.Minute) }
	created, err := mgr.CreateBatch(context.Background(), []RankedCandidate{
		{Candidate: candidate(), Tier: contracts.TierPremium},
		{Candidate: contracts.Candidate{Symbol: "ETHUSDT", Direction: contracts.DirectionLong, EntryPrice: 3000, Score: 70}, Tier: contracts.TierPlus},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "ETHUSDT", created[0].Symbol)
}

func TestEntryEstimateInZone(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{price: 50010})

	signal, err := mgr.Create(context.Background(), candidate(), contracts.TierFree)
	require.NoError(t, err)

	assert.Equal(t, contracts.EntryEstimate{Min: 1, Max: 5}, signal.ETA)
}

func TestEntryEstimateOutOfZone(t *testing.T) {
	// 2% above the zone mid: 0.02/0.004 = 5 candles of 5m = 25 min.
	mgr, _ := newTestManager(&fakeMarket{price: 51000})

	signal, err := mgr.Create(context.Background(), candidate(), contracts.TierFree)
	require.NoError(t, err)

	assert.Equal(t, 15, signal.ETA.Min)
	assert.Equal(t, 35, signal.ETA.Max)
}

func TestEntryEstimateFallback(t *testing.T) {
	mgr, _ := newTestManager(&fakeMarket{priceErr: errors.New("binance down")})

	signal, err := mgr.Create(context.Background(), candidate(), contracts.TierFree)
	require.NoError(t, err)

	assert.Equal(t, contracts.EntryEstimate{Min: 30, Max: 90}, signal.ETA)
}

func TestCreatePersistsSignal(t *testing.T) {
	mgr, store := newTestManager(&fakeMarket{price: 50000})

	signal, err := mgr.Create(context.Background(), candidate(), contracts.TierPremium)
	require.NoError(t, err)

	stored, err := store.Signals().Get(context.Background(), signal.ID)
	require.NoError(t, err)
	assert.Equal(t, signal.Symbol, stored.Symbol)
	assert.Equal(t, signal.EntryPrice, stored.EntryPrice)
}
