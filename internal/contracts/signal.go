package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a trade setup.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Candle is one OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ScoreComponent records one scoring rule's contribution.
type ScoreComponent struct {
	Rule   string  `json:"rule"`
	Points float64 `json:"points"`
}

// Candidate is a scored opportunity produced by the strategy evaluator
// for one symbol, before ranking and tier assignment.
type Candidate struct {
	Symbol     string
	Direction  Direction
	EntryPrice float64
	Score      float64
	Components []ScoreComponent
}

// PriceZone is a price band around the entry.
type PriceZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether the price lies inside the zone.
func (z PriceZone) Contains(price float64) bool {
	return price >= z.Low && price <= z.High
}

// Mid returns the middle of the zone.
func (z PriceZone) Mid() float64 {
	return (z.Low + z.High) / 2
}

// EntryEstimate is the expected time to reach the entry zone, minutes.
type EntryEstimate struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// BaseSignal is the signal computed once per detected opportunity.
// Immutable after creation; both validity timestamps are set in the
// same insert that persists it.
type BaseSignal struct {
	ID          uuid.UUID
	Symbol      string
	Direction   Direction
	EntryPrice  float64
	StopLoss    float64
	TakeProfits []float64
	Timeframes  []string
	Tier        Tier
	Score       float64
	Components  []ScoreComponent

	EntryZone PriceZone
	ETA       EntryEstimate

	CreatedAt time.Time
	// ValidUntil is the short display window.
	ValidUntil time.Time
	// CooldownUntil is the longer window during which new signal
	// creation is globally suppressed.
	CooldownUntil time.Time
}

// Live reports whether the signal is still displayable.
func (s *BaseSignal) Live(now time.Time) bool {
	return s.CooldownUntil.After(now)
}

// RiskProfile names one of the derived risk parameter sets.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileModerate     RiskProfile = "moderate"
	ProfileAggressive   RiskProfile = "aggressive"
)

// Profiles lists the risk profiles in display order.
var Profiles = []RiskProfile{ProfileConservative, ProfileModerate, ProfileAggressive}

// LeverageLabels maps each risk profile to its fixed leverage range.
var LeverageLabels = map[RiskProfile]string{
	ProfileConservative: "5x-10x",
	ProfileModerate:     "10x-20x",
	ProfileAggressive:   "30x-40x",
}

// ProfileLevels holds derived stop-loss and take-profits for a profile.
type ProfileLevels struct {
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`
}

// SubscriberSignal is the per-subscriber obfuscated derivation of a
// base signal. One exists per (signal, subscriber) pair; re-deriving
// within the validity window returns the same record.
type SubscriberSignal struct {
	SubscriberID int64
	SignalID     uuid.UUID
	Symbol       string
	Direction    Direction
	EntryPrice   float64
	EntryZone    PriceZone
	Profiles     map[RiskProfile]ProfileLevels
	Timeframes   []string
	Tier         Tier

	// Fingerprint is a short opaque display ID, purely cosmetic.
	Fingerprint string

	CreatedAt     time.Time
	ValidUntil    time.Time
	CooldownUntil time.Time
}

// ReferralRecord is the immutable log of one valid referral. Unique per
// (referrer, referred) pair: a referred subscriber only ever counts
// once toward a referrer's totals.
type ReferralRecord struct {
	ReferrerID    int64
	ReferredID    int64
	ActivatedTier Tier
	ActivatedAt   time.Time
	RewardApplied bool
}

// SignalOutcome classifies an evaluated signal.
type SignalOutcome string

const (
	OutcomeWon     SignalOutcome = "won"
	OutcomeLost    SignalOutcome = "lost"
	OutcomeExpired SignalOutcome = "expired"
)

// SignalResult records the outcome of a finished signal for the
// win/loss counters.
type SignalResult struct {
	Symbol      string
	Tier        Tier
	Outcome     SignalOutcome
	EvaluatedAt time.Time
}
