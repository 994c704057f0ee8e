package strategy

import (
	"math"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// Scoring constants. Stage points are fixed; the entry stage is scaled
// continuously by pullback proximity.
const (
	emaFast = 20
	emaSlow = 50

	rsiPeriod      = 14
	rsiTrendMin    = 50.0
	rsiPullbackMin = 45.0
	rsiPullbackMax = 55.0

	trendPoints    = 35.0
	pullbackPoints = 30.0
	entryPoints    = 30.0
	bonusPoints    = 5.0

	maxScore = 100.0

	// Breakout trigger: close beyond the 20-bar extreme with volume
	// at least breakoutVolumeRatio times the 20-bar average.
	breakoutLookback    = 20
	breakoutVolumeRatio = 1.5
)

// frame holds the per-timeframe indicator snapshot used by the stages.
type frame struct {
	last    contracts.Candle
	emaFast float64
	emaSlow float64
	rsi     float64
}

func newFrame(candles []contracts.Candle) frame {
	return frame{
		last:    candles[len(candles)-1],
		emaFast: EMA(candles, emaFast),
		emaSlow: EMA(candles, emaSlow),
		rsi:     RSI(candles, rsiPeriod),
	}
}

// Evaluate runs the multi-timeframe strategy over aligned candle series
// for one symbol: a long (1h), medium (15m) and short (5m) timeframe,
// each ordered oldest first. It is pure: no side effects, no clock.
// Returns nil when no qualifying setup exists, otherwise a candidate
// with a score in [0,100].
func Evaluate(long, med, short []contracts.Candle) *contracts.Candidate {
	if len(long) < emaSlow+1 || len(med) < emaSlow+1 || len(short) < emaSlow+1 {
		return nil
	}

	fLong := newFrame(long)
	fMed := newFrame(med)
	fShort := newFrame(short)

	score := 0.0
	components := make([]contracts.ScoreComponent, 0, 4)

	// Stage 1: long-timeframe trend filter
	var direction contracts.Direction
	switch {
	case fLong.emaFast > fLong.emaSlow && fLong.rsi >= rsiTrendMin:
		direction = contracts.DirectionLong
	case fLong.emaFast < fLong.emaSlow && fLong.rsi <= rsiTrendMin:
		direction = contracts.DirectionShort
	default:
		return nil
	}
	score += trendPoints
	components = append(components, contracts.ScoreComponent{Rule: "trend_1h", Points: trendPoints})

	// Stage 2: medium-timeframe pullback confirmation
	if !pullbackConfirmed(fMed, direction) {
		return nil
	}
	score += pullbackPoints
	components = append(components, contracts.ScoreComponent{Rule: "pullback_15m", Points: pullbackPoints})

	// Stage 3: short-timeframe entry trigger
	if !entryConfirmed(fShort, direction) {
		return nil
	}

	if breakoutConfirmed(short, fShort, direction) {
		score += entryPoints
		components = append(components, contracts.ScoreComponent{Rule: "breakout_5m", Points: entryPoints})
	} else {
		// Proximity to the fast EMA scales the entry points: a clean
		// re-entry right at the EMA earns the full value.
		distancePct := math.Abs(fShort.last.Close-fShort.emaFast) / fShort.last.Close
		entryScore := entryPoints - distancePct*3000
		entryScore = math.Min(entryPoints, math.Max(0, entryScore))

		score += entryScore
		components = append(components, contracts.ScoreComponent{Rule: "entry_5m", Points: round2(entryScore)})
	}

	// Momentum bonus: oscillator in the extreme zone for the direction
	if (direction == contracts.DirectionLong && fShort.rsi > 60) ||
		(direction == contracts.DirectionShort && fShort.rsi < 40) {
		score += bonusPoints
		components = append(components, contracts.ScoreComponent{Rule: "momentum_bonus", Points: bonusPoints})
	}

	score = math.Min(maxScore, math.Max(0, score))

	return &contracts.Candidate{
		Direction:  direction,
		EntryPrice: round4(fShort.last.Close),
		Score:      round2(score),
		Components: components,
	}
}

func pullbackConfirmed(f frame, direction contracts.Direction) bool {
	if f.rsi < rsiPullbackMin || f.rsi > rsiPullbackMax {
		return false
	}
	if direction == contracts.DirectionLong {
		return f.last.Close >= f.emaFast
	}
	return f.last.Close <= f.emaFast
}

func entryConfirmed(f frame, direction contracts.Direction) bool {
	if direction == contracts.DirectionLong {
		return f.emaFast > f.emaSlow && f.rsi > rsiTrendMin
	}
	return f.emaFast < f.emaSlow && f.rsi < rsiTrendMin
}

func breakoutConfirmed(candles []contracts.Candle, f frame, direction contracts.Direction) bool {
	avgVol := AverageVolume(candles, breakoutLookback)
	if avgVol <= 0 || f.last.Volume < avgVol*breakoutVolumeRatio {
		return false
	}

	if direction == contracts.DirectionLong {
		band := HighestHigh(candles, breakoutLookback)
		return band > 0 && f.last.Close > band
	}
	band := LowestLow(candles, breakoutLookback)
	return band > 0 && f.last.Close < band
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
