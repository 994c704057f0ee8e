package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/selection"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/internal/store/memory"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

func candle(close, volume float64) contracts.Candle {
	return contracts.Candle{Open: close, High: close, Low: close, Close: close, Volume: volume}
}

func rising(n int, start, step float64) []contracts.Candle {
	out := make([]contracts.Candle, n)
	for i := range out {
		out[i] = candle(start+float64(i)*step, 10)
	}
	return out
}

func choppy(n int, level, amplitude float64) []contracts.Candle {
	out := make([]contracts.Candle, n)
	for i := range out {
		v := level
		if i%2 == 1 {
			v = level + amplitude
		}
		out[i] = candle(v, 10)
	}
	return out
}

func driftUp(n int) []contracts.Candle {
	out := rising(n-10, 100, 1)
	last := out[len(out)-1].Close
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			last += 0.4
		} else {
			last -= 0.2
		}
		out = append(out, candle(last, 10))
	}
	return out
}

// longSetup returns candle series that score as a LONG candidate.
func longSetup() map[string][]contracts.Candle {
	return map[string][]contracts.Candle{
		"1h":  rising(60, 100, 1),
		"15m": choppy(60, 100, 0.5),
		"5m":  driftUp(60),
	}
}

type fakeMarket struct {
	mu      sync.Mutex
	symbols []string
	series  map[string]map[string][]contracts.Candle
	listErr error
	failing map[string]error

	listCalls   int
	candleCalls int
}

func (f *fakeMarket) ListActiveSymbols(context.Context, float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.symbols, f.listErr
}

func (f *fakeMarket) GetCandles(_ context.Context, symbol, interval string, _ int) ([]contracts.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	if err, ok := f.failing[symbol]; ok {
		return nil, err
	}
	return f.series[symbol][interval], nil
}

func (f *fakeMarket) calls() (lists, candles int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.candleCalls
}

func (f *fakeMarket) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls, f.candleCalls = 0, 0
}

func (f *fakeMarket) LastPrice(context.Context, string) (float64, error) {
	return 100, nil
}

type fakeDistributor struct {
	mu      sync.Mutex
	signals []*contracts.BaseSignal
}

func (f *fakeDistributor) Distribute(_ context.Context, base *contracts.BaseSignal) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, base)
	return 1, nil
}

func (f *fakeDistributor) distributed() []*contracts.BaseSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*contracts.BaseSignal(nil), f.signals...)
}

func scannerConfig() *config.Config {
	return &config.Config{
		Scanner: config.ScannerConfig{
			Interval:       time.Minute,
			MinQuoteVolume: 50_000_000,
			CandleLimit:    200,
			ErrorBackoff:   time.Second,
		},
		Signals: config.SignalConfig{
			DedupWindow: 10 * time.Minute,
			Cooldown:    15 * time.Minute,
		},
	}
}

func newTestScanner(market contracts.MarketData) (*Scanner, *fakeDistributor, *memory.Store) {
	cfg := scannerConfig()
	log := logger.NewNop()
	store := memory.New()
	manager := signals.NewManager(cfg, log, store.Signals(), market)
	dist := &fakeDistributor{}
	return New(cfg, log, market, selection.NewRanker(log), manager, dist), dist, store
}

func TestScanCreatesAndDistributesTopThree(t *testing.T) {
	market := &fakeMarket{
		symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"},
		series: map[string]map[string][]contracts.Candle{
			"BTCUSDT": longSetup(),
			"ETHUSDT": longSetup(),
			"SOLUSDT": longSetup(),
			"XRPUSDT": longSetup(),
		},
	}
	sc, dist, _ := newTestScanner(market)

	require.NoError(t, sc.Scan(context.Background()))

	created := dist.distributed()
	require.Len(t, created, 3)

	tiers := map[contracts.Tier]bool{}
	for _, signal := range created {
		tiers[signal.Tier] = true
		assert.Equal(t, contracts.DirectionLong, signal.Direction)
	}
	assert.True(t, tiers[contracts.TierPremium])
	assert.True(t, tiers[contracts.TierPlus])
	assert.True(t, tiers[contracts.TierFree])
}

func TestScanSkipsThinCycles(t *testing.T) {
	market := &fakeMarket{
		symbols: []string{"BTCUSDT", "ETHUSDT"},
		series: map[string]map[string][]contracts.Candle{
			"BTCUSDT": longSetup(),
			"ETHUSDT": longSetup(),
		},
	}
	sc, dist, _ := newTestScanner(market)

	require.NoError(t, sc.Scan(context.Background()))
	assert.Empty(t, dist.distributed())
}

func TestScanIsolatesSymbolFailures(t *testing.T) {
	market := &fakeMarket{
		symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BROKENUSDT"},
		series: map[string]map[string][]contracts.Candle{
			"BTCUSDT": longSetup(),
			"ETHUSDT": longSetup(),
			"SOLUSDT": longSetup(),
		},
		failing: map[string]error{"BROKENUSDT": contracts.ErrTransient},
	}
	sc, dist, _ := newTestScanner(market)

	require.NoError(t, sc.Scan(context.Background()))
	assert.Len(t, dist.distributed(), 3)
}

func TestScanReportsUniverseFailure(t *testing.T) {
	market := &fakeMarket{listErr: errors.New("binance down")}
	sc, dist, _ := newTestScanner(market)

	assert.Error(t, sc.Scan(context.Background()))
	assert.Empty(t, dist.distributed())
}

func TestScanHonorsCooldown(t *testing.T) {
	market := &fakeMarket{
		symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		series: map[string]map[string][]contracts.Candle{
			"BTCUSDT": longSetup(),
			"ETHUSDT": longSetup(),
			"SOLUSDT": longSetup(),
		},
	}
	sc, dist, _ := newTestScanner(market)

	require.NoError(t, sc.Scan(context.Background()))
	require.Len(t, dist.distributed(), 3)

	err := sc.Scan(context.Background())
	assert.ErrorIs(t, err, signals.ErrCooldownActive)
	assert.Len(t, dist.distributed(), 3, "no new signals during cooldown")
}

func TestScanCooldownPrecedesMarketCalls(t *testing.T) {
	market := &fakeMarket{
		symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		series: map[string]map[string][]contracts.Candle{
			"BTCUSDT": longSetup(),
			"ETHUSDT": longSetup(),
			"SOLUSDT": longSetup(),
		},
	}
	sc, dist, _ := newTestScanner(market)

	require.NoError(t, sc.Scan(context.Background()))
	require.Len(t, dist.distributed(), 3)

	// The blocked cycle must not touch the market gateway at all.
	market.resetCalls()
	require.ErrorIs(t, sc.Scan(context.Background()), signals.ErrCooldownActive)

	lists, candles := market.calls()
	assert.Zero(t, lists, "symbol universe fetched despite an open cooldown")
	assert.Zero(t, candles, "candles fetched despite an open cooldown")
}

func TestRunStopsOnCancel(t *testing.T) {
	market := &fakeMarket{symbols: []string{}}
	sc, _, _ := newTestScanner(market)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sc.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop on context cancel")
	}
}
