package markets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two 429 responses, success on the third: the third payload wins and
// the elapsed time covers both backoff waits (base + 2*base).
func TestFearGreedRetriesOn429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"value":"54"}]}`))
	}))
	defer server.Close()

	baseDelay := 20 * time.Millisecond
	client := NewSentimentClient(
		WithFearGreedURL(server.URL),
		WithSentimentRetry(3, baseDelay),
	)

	start := time.Now()
	value, err := client.GetFearGreedIndex(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 54, value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	// Waits were 1*base then 2*base
	assert.GreaterOrEqual(t, elapsed, 3*baseDelay-5*time.Millisecond)
}

func TestFearGreedGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewSentimentClient(
		WithFearGreedURL(server.URL),
		WithSentimentRetry(3, time.Millisecond),
	)

	_, err := client.GetFearGreedIndex(context.Background())
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFearGreedRejectsOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"240"}]}`))
	}))
	defer server.Close()

	client := NewSentimentClient(WithFearGreedURL(server.URL))
	_, err := client.GetFearGreedIndex(context.Background())
	assert.Error(t, err)
}

func TestBTCDominance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"market_cap_percentage":{"btc":52.3,"eth":17.1}}}`))
	}))
	defer server.Close()

	client := NewSentimentClient(WithDominanceURL(server.URL))
	pct, err := client.GetBTCDominance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 52.3, pct, 0.001)
}

func TestBTCDominanceMissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"market_cap_percentage":{}}}`))
	}))
	defer server.Close()

	client := NewSentimentClient(WithDominanceURL(server.URL))
	_, err := client.GetBTCDominance(context.Background())
	assert.Error(t, err)
}
