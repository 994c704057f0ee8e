package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/internal/store/memory"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []int64
	deleted []contracts.MessageRef
	failFor map[int64]error
	nextID  int64
}

func (f *fakeMessenger) SendEphemeral(_ context.Context, recipient int64, _ string) (contracts.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[recipient]; ok {
		return contracts.MessageRef{}, err
	}
	f.nextID++
	f.sent = append(f.sent, recipient)
	return contracts.MessageRef{ChatID: recipient, MessageID: f.nextID}, nil
}

func (f *fakeMessenger) Delete(_ context.Context, ref contracts.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeMessenger) sentTo() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

func (f *fakeMessenger) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func testSignal(tier contracts.Tier) *contracts.BaseSignal {
	now := time.Now()
	return &contracts.BaseSignal{
		ID:            uuid.New(),
		Symbol:        "BTCUSDT",
		Direction:     contracts.DirectionLong,
		EntryPrice:    50000,
		StopLoss:      49500,
		TakeProfits:   []float64{50500, 51000},
		Timeframes:    []string{"5M", "15M", "1H"},
		Tier:          tier,
		CreatedAt:     now,
		ValidUntil:    now.Add(time.Hour),
		CooldownUntil: now.Add(15 * time.Minute),
	}
}

// addSubscriber seeds one subscriber, optionally with an active paid
// plan.
func addSubscriber(t *testing.T, store *memory.Store, id int64, tier contracts.Tier) {
	t.Helper()
	sub, err := contracts.NewSubscriber(id, "user", nil, 7, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Subscribers().Create(context.Background(), sub))
	if tier.Paid() {
		require.NoError(t, store.Subscribers().ActivatePlan(context.Background(), id, tier, 30))
	}
}

func newTestDistributor(store *memory.Store, messenger contracts.Messenger, autoDelete time.Duration, adminIDs ...int64) *Distributor {
	cfg := &config.Config{
		Telegram: config.TelegramConfig{AdminIDs: adminIDs},
		Signals:  config.SignalConfig{AlertAutoDelete: autoDelete, MaxPerQuery: 10},
	}
	log := logger.NewNop()
	deriver := signals.NewDeriver(log, store.SubscriberSignals())
	return New(cfg, log, store.Subscribers(), store.SubscriberSignals(), deriver, messenger)
}

func TestDistributeMatchesExactTier(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)
	addSubscriber(t, store, 2, contracts.TierPlus)
	addSubscriber(t, store, 3, contracts.TierFree) // trial

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierPlus))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{2}, messenger.sentTo())
}

func TestDistributeTrialSubscribersGetFreeFeed(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierFree)

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierFree))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestDistributeSkipsLapsedSubscribers(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierFree)

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)
	dist.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierFree))
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestDistributeAdminsOnlyPremium(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPlus) // admin on a plus plan

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0, 1)

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierPlus))
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "admin must not receive non-premium signals")

	sent, err = dist.Distribute(context.Background(), testSignal(contracts.TierPremium))
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "admin receives premium regardless of own tier")
}

func TestDistributeSurvivesSendFailures(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)
	addSubscriber(t, store, 2, contracts.TierPremium)
	addSubscriber(t, store, 3, contracts.TierPremium)

	messenger := &fakeMessenger{failFor: map[int64]error{2: errors.New("blocked")}}
	dist := newTestDistributor(store, messenger, 0)

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierPremium))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []int64{1, 3}, messenger.sentTo())
}

func TestDistributeAutoDeletes(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 20*time.Millisecond)

	sent, err := dist.Distribute(context.Background(), testSignal(contracts.TierPremium))
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	assert.Eventually(t, func() bool {
		return messenger.deleteCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDistributePersistsDerivation(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)

	base := testSignal(contracts.TierPremium)
	_, err := dist.Distribute(context.Background(), base)
	require.NoError(t, err)

	derived, err := store.SubscriberSignals().FindLive(context.Background(), 1, base.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, base.Symbol, derived.Symbol)
	assert.NotEqual(t, base.EntryPrice, derived.EntryPrice)
}

func TestFormatAlertContainsLevels(t *testing.T) {
	store := memory.New()
	log := logger.NewNop()
	deriver := signals.NewDeriver(log, store.SubscriberSignals())

	derived, err := deriver.Derive(context.Background(), testSignal(contracts.TierPremium), 1)
	require.NoError(t, err)

	text := FormatAlert(derived)
	assert.Contains(t, text, "PREMIUM SIGNAL")
	assert.Contains(t, text, "BTCUSDT")
	assert.Contains(t, text, "LONG")
	assert.Contains(t, text, "5x-10x")
	assert.Contains(t, text, "30x-40x")
	assert.Contains(t, text, derived.Fingerprint)
}

func TestFormatDigestEmpty(t *testing.T) {
	assert.Contains(t, FormatDigest(nil), "No active signals")
}

func TestDigestListsLiveSignals(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)

	first := testSignal(contracts.TierPremium)
	second := testSignal(contracts.TierPremium)
	second.Symbol = "ETHUSDT"
	_, err := dist.Distribute(context.Background(), first)
	require.NoError(t, err)
	_, err = dist.Distribute(context.Background(), second)
	require.NoError(t, err)

	text, err := dist.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, text, "Active signals (2)")
	assert.Contains(t, text, "BTCUSDT")
	assert.Contains(t, text, "ETHUSDT")
}

func TestDigestEmptyWithoutLiveSignals(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierPremium)

	dist := newTestDistributor(store, &fakeMessenger{}, 0)

	text, err := dist.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, text, "No active signals")
}

func TestDigestRefusedWithoutAccess(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierFree)

	dist := newTestDistributor(store, &fakeMessenger{}, 0)
	dist.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	_, err := dist.Digest(context.Background(), 1)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestDigestFollowsEffectiveTier(t *testing.T) {
	store := memory.New()
	addSubscriber(t, store, 1, contracts.TierFree) // trial

	messenger := &fakeMessenger{}
	dist := newTestDistributor(store, messenger, 0)

	// A free signal reaches the trial subscriber, a premium one does not.
	_, err := dist.Distribute(context.Background(), testSignal(contracts.TierFree))
	require.NoError(t, err)

	text, err := dist.Digest(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, text, "Active signals (1)")
	assert.Contains(t, text, "FREE SIGNAL")
}
