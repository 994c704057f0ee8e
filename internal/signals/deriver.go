package signals

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

const (
	entryJitterPct = 0.0005
	levelJitterPct = 0.001

	fingerprintBytes = 4
)

// Deriver produces the per-subscriber variant of a base signal. The
// variation is a pure function of (signal ID, subscriber ID), so
// re-deriving an expired record reproduces the same numbers; only the
// fingerprint differs between derivations.
type Deriver struct {
	derived contracts.SubscriberSignalRepository
	logger  *logger.Logger

	now func() time.Time
}

// NewDeriver creates a per-subscriber signal deriver.
func NewDeriver(log *logger.Logger, repo contracts.SubscriberSignalRepository) *Deriver {
	return &Deriver{
		derived: repo,
		logger:  log,
		now:     time.Now,
	}
}

// Derive returns the subscriber's variant of the base signal, creating
// and persisting it on first request. While a live record exists for
// the pair it is returned unchanged.
func (d *Deriver) Derive(ctx context.Context, base *contracts.BaseSignal, subscriberID int64) (*contracts.SubscriberSignal, error) {
	existing, err := d.derived.FindLive(ctx, subscriberID, base.ID, d.now())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("look up derived signal: %w", err)
	}

	rng := rand.New(rand.NewSource(deriveSeed(base.ID.String(), subscriberID)))

	// Draw order is fixed: entry first, then stop-loss and take-profits
	// for each profile in display order. Changing it breaks
	// reproducibility for every existing pair.
	entry := round4(base.EntryPrice * jitter(rng, entryJitterPct))

	profiles := make(map[contracts.RiskProfile]contracts.ProfileLevels, len(contracts.Profiles))
	for _, profile := range contracts.Profiles {
		levels := contracts.ProfileLevels{
			StopLoss:    round4(base.StopLoss * jitter(rng, levelJitterPct)),
			TakeProfits: make([]float64, len(base.TakeProfits)),
		}
		for i, tp := range base.TakeProfits {
			levels.TakeProfits[i] = round4(tp * jitter(rng, levelJitterPct))
		}
		profiles[profile] = levels
	}

	derived := &contracts.SubscriberSignal{
		SubscriberID: subscriberID,
		SignalID:     base.ID,
		Symbol:       base.Symbol,
		Direction:    base.Direction,
		EntryPrice:   entry,
		EntryZone: contracts.PriceZone{
			Low:  round4(entry * (1 - entryZonePct)),
			High: round4(entry * (1 + entryZonePct)),
		},
		Profiles:      profiles,
		Timeframes:    base.Timeframes,
		Tier:          base.Tier,
		Fingerprint:   newFingerprint(),
		CreatedAt:     d.now(),
		ValidUntil:    base.ValidUntil,
		CooldownUntil: base.CooldownUntil,
	}

	if err := d.derived.Insert(ctx, derived); err != nil {
		return nil, fmt.Errorf("persist derived signal: %w", err)
	}

	return derived, nil
}

// deriveSeed folds the pair identity into a deterministic PRNG seed.
func deriveSeed(signalID string, subscriberID int64) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", signalID, subscriberID)))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// jitter returns a multiplier uniform in [1-pct, 1+pct].
func jitter(rng *rand.Rand, pct float64) float64 {
	return 1 + (rng.Float64()*2-1)*pct
}

// newFingerprint returns a short cosmetic display ID. Unseeded on
// purpose: it must differ between derivations of the same pair.
func newFingerprint() string {
	buf := make([]byte, fingerprintBytes)
	if _, err := crand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
