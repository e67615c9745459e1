package markets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldSilverRatio(t *testing.T) {
	ratio := GoldSilverRatio(2400, 30)
	require.NotNil(t, ratio)
	assert.InDelta(t, 80.0, *ratio, 0.001)

	assert.Nil(t, GoldSilverRatio(2400, 0))
	assert.Nil(t, GoldSilverRatio(0, 30))
	assert.Nil(t, GoldSilverRatio(-1, 30))
}

func TestCurveSpreadBps(t *testing.T) {
	spread := CurveSpreadBps(4.25, 3.75)
	require.NotNil(t, spread)
	assert.InDelta(t, 50.0, *spread, 0.001)

	// Inverted curve is a valid, negative spread
	inverted := CurveSpreadBps(3.75, 4.25)
	require.NotNil(t, inverted)
	assert.InDelta(t, -50.0, *inverted, 0.001)

	assert.Nil(t, CurveSpreadBps(0, 3.75))
	assert.Nil(t, CurveSpreadBps(4.25, 0))
}

func TestRSI(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		assert.Nil(t, RSI([]float64{100, 101, 102}, 14))
	})

	t.Run("all gains saturates at 100", func(t *testing.T) {
		closes := make([]float64, 16)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		rsi := RSI(closes, 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 100.0, *rsi, 0.001)
	})

	t.Run("all losses near zero", func(t *testing.T) {
		closes := make([]float64, 16)
		for i := range closes {
			closes[i] = 200 - float64(i)
		}
		rsi := RSI(closes, 14)
		require.NotNil(t, rsi)
		assert.Less(t, *rsi, 1.0)
	})

	t.Run("mixed series stays in range", func(t *testing.T) {
		closes := []float64{100, 102, 101, 103, 105, 104, 106, 105, 107, 106, 108, 107, 109, 108, 110, 109, 111}
		rsi := RSI(closes, 14)
		require.NotNil(t, rsi)
		assert.Greater(t, *rsi, 0.0)
		assert.Less(t, *rsi, 100.0)
	})
}

func TestMarketPhase(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"weekend", time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC), "closed (weekend)"},
		{"regular session", time.Date(2025, 6, 16, 15, 0, 0, 0, time.UTC), "regular session"},
		{"pre-market", time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC), "pre-market"},
		{"after-hours", time.Date(2025, 6, 16, 21, 0, 0, 0, time.UTC), "after-hours"},
		{"overnight", time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC), "closed"},
		{"session open boundary", time.Date(2025, 6, 16, 13, 30, 0, 0, time.UTC), "regular session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketPhase(tt.at))
		})
	}
}
