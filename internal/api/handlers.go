package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/notify"
	"github.com/wonny/mtfscan/backend/internal/scheduler"
	"github.com/wonny/mtfscan/backend/internal/stats"
	"github.com/wonny/mtfscan/backend/internal/subscription"
	"github.com/wonny/mtfscan/backend/pkg/database"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

const liveSignalLimit = 10

// Handler serves the operational endpoints.
type Handler struct {
	db        *database.DB
	signals   contracts.SignalRepository
	stats     *stats.Service
	subs      *subscription.Service
	notify    *notify.Distributor
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewHandler creates the endpoint handler. Nil components disable
// their endpoints with 503 rather than panicking.
func NewHandler(db *database.DB, signals contracts.SignalRepository, statsSvc *stats.Service, subs *subscription.Service, distributor *notify.Distributor, sched *scheduler.Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		db:        db,
		signals:   signals,
		stats:     statsSvc,
		subs:      subs,
		notify:    distributor,
		scheduler: sched,
		logger:    log,
	}
}

// Health reports process and database health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":  "ok",
		"service": "mtfscan",
	}

	if h.db != nil {
		status, err := h.db.HealthCheck(r.Context())
		if err != nil {
			payload["status"] = "degraded"
		}
		payload["database"] = status
	}

	writeJSON(w, http.StatusOK, payload)
}

// Stats returns win-rate summaries for all periods.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}

	summaries, err := h.stats.SummarizeAll(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize stats")
		writeError(w, http.StatusInternalServerError, "failed to summarize stats")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// LiveSignals returns the live base signals for a tier. Only the
// obfuscated derivations ever leave the system toward subscribers;
// this endpoint is for operators.
func (h *Handler) LiveSignals(w http.ResponseWriter, r *http.Request) {
	if h.signals == nil {
		writeError(w, http.StatusServiceUnavailable, "signals unavailable")
		return
	}

	tier := contracts.Tier(r.URL.Query().Get("tier"))
	if tier == "" {
		tier = contracts.TierPremium
	}
	if !tier.Valid() {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	live, err := h.signals.ListLive(r.Context(), tier, time.Now(), liveSignalLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list live signals")
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	writeJSON(w, http.StatusOK, live)
}

// SubscriberSignals returns one subscriber's live derived signals,
// rendered as the combined digest text.
func (h *Handler) SubscriberSignals(w http.ResponseWriter, r *http.Request) {
	if h.notify == nil {
		writeError(w, http.StatusServiceUnavailable, "signal feed unavailable")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	text, err := h.notify.Digest(r.Context(), id)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found or inactive")
			return
		}
		h.logger.WithError(err).Error("Failed to render signal digest")
		writeError(w, http.StatusInternalServerError, "failed to render digest")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// SchedulerJobs returns per-job execution statistics.
func (h *Handler) SchedulerJobs(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Stats())
}

// ReferralStats returns one subscriber's referral standing.
func (h *Handler) ReferralStats(w http.ResponseWriter, r *http.Request) {
	if h.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions unavailable")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	referralStats, err := h.subs.Stats(r.Context(), id)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		h.logger.WithError(err).Error("Failed to load referral stats")
		writeError(w, http.StatusInternalServerError, "failed to load referral stats")
		return
	}
	writeJSON(w, http.StatusOK, referralStats)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
