package strategy

import "github.com/wonny/mtfscan/backend/internal/contracts"

// EMA returns the exponential moving average of the closes at the last
// bar. Candles are ordered oldest first. Returns 0 when the series is
// shorter than the period.
func EMA(candles []contracts.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	// Seed with the SMA of the first period bars
	var sum float64
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*multiplier + ema
	}

	return ema
}

// RSI returns the Wilder-smoothed relative strength index at the last
// bar. Returns 50 (neutral) when the series is too short.
func RSI(candles []contracts.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 50.0
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// HighestHigh returns the maximum high over the last n bars, excluding
// the final bar.
func HighestHigh(candles []contracts.Candle, n int) float64 {
	return extreme(candles, n, true)
}

// LowestLow returns the minimum low over the last n bars, excluding
// the final bar.
func LowestLow(candles []contracts.Candle, n int) float64 {
	return extreme(candles, n, false)
}

func extreme(candles []contracts.Candle, n int, high bool) float64 {
	if len(candles) < n+1 || n <= 0 {
		return 0
	}

	start := len(candles) - 1 - n
	best := 0.0
	for i := start; i < len(candles)-1; i++ {
		v := candles[i].Low
		if high {
			v = candles[i].High
		}
		if i == start || (high && v > best) || (!high && v < best) {
			best = v
		}
	}
	return best
}

// AverageVolume returns the mean volume over the last n bars, excluding
// the final bar.
func AverageVolume(candles []contracts.Candle, n int) float64 {
	if len(candles) < n+1 || n <= 0 {
		return 0
	}

	var sum float64
	for i := len(candles) - 1 - n; i < len(candles)-1; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(n)
}
