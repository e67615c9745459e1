package markets

import (
	"time"
)

// GoldSilverRatio returns gold price divided by silver price, or nil
// when either input is missing or non-positive.
func GoldSilverRatio(gold, silver float64) *float64 {
	if gold <= 0 || silver <= 0 {
		return nil
	}
	ratio := gold / silver
	return &ratio
}

// CurveSpreadBps returns the yield curve spread (long minus short tenor)
// in basis points, or nil when either yield is missing.
func CurveSpreadBps(longYield, shortYield float64) *float64 {
	if longYield <= 0 || shortYield <= 0 {
		return nil
	}
	spread := (longYield - shortYield) * 100
	return &spread
}

// RSI computes the relative strength index over the given period from a
// series of daily closes (oldest first). Returns nil when the series is
// too short to fill one period.
func RSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
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
		rsi := 100.0
		return &rsi
	}
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	return &rsi
}

// MarketPhase labels the current point in the US equity trading day.
// Regular session: 13:30-20:00 UTC; pre-market from 09:00 UTC;
// after-hours until 24:00 UTC. Weekends are closed.
func MarketPhase(now time.Time) string {
	utc := now.UTC()
	switch utc.Weekday() {
	case time.Saturday, time.Sunday:
		return "closed (weekend)"
	}

	minutes := utc.Hour()*60 + utc.Minute()
	switch {
	case minutes >= 13*60+30 && minutes < 20*60:
		return "regular session"
	case minutes >= 9*60 && minutes < 13*60+30:
		return "pre-market"
	case minutes >= 20*60:
		return "after-hours"
	default:
		return "closed"
	}
}
