package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/notify"
	"github.com/wonny/mtfscan/backend/internal/scheduler"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/internal/stats"
	"github.com/wonny/mtfscan/backend/internal/store/memory"
	"github.com/wonny/mtfscan/backend/internal/subscription"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

func newTestRouter(store *memory.Store) http.Handler {
	log := logger.NewNop()
	cfg := &config.Config{
		Plans: config.PlanConfig{
			DurationDays: 30, TrialDays: 7,
			FreePremiumThreshold: 5, FreePlusThreshold: 5,
			PlusPremiumThreshold: 5, PlusPlusThreshold: 5,
			PremiumPremiumThreshold: 5, PremiumPlusThreshold: 10,
		},
		Signals: config.SignalConfig{MaxPerQuery: 10},
	}
	subs := subscription.NewService(cfg, log, store.Subscribers(), store.Referrals())
	deriver := signals.NewDeriver(log, store.SubscriberSignals())
	dist := notify.New(cfg, log, store.Subscribers(), store.SubscriberSignals(), deriver, nil)
	handler := NewHandler(nil, store.Signals(), stats.NewService(store.Results()), subs, dist, scheduler.New(log), log)
	return NewRouter(handler, log)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(memory.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestStatsEndpoint(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Results().Insert(context.Background(), &contracts.SignalResult{
		Symbol: "BTCUSDT", Tier: contracts.TierPremium, Outcome: contracts.OutcomeWon,
	}))

	router := newTestRouter(store)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []stats.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 3)
}

func TestLiveSignalsRejectsUnknownTier(t *testing.T) {
	router := newTestRouter(memory.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/signals/live?tier=vip", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferralStatsEndpoint(t *testing.T) {
	store := memory.New()
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/referrals/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sub, err := contracts.NewSubscriber(42, "alice", nil, 7, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Subscribers().Create(context.Background(), sub))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/referrals/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload subscription.ReferralStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ref_42", payload.RefCode)
}

func TestSubscriberSignalsEndpoint(t *testing.T) {
	store := memory.New()
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subscribers/42/signals", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sub, err := contracts.NewSubscriber(42, "alice", nil, 7, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Subscribers().Create(context.Background(), sub))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subscribers/42/signals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload["text"], "No active signals")
}
