package markets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A canceled context aborts the provider call; the error reports the
// cancellation, never a provider rate limit.
func TestCanceledContextIsNotRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent on a canceled context")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pricing := NewPricingClient(WithPricingBaseURL(srv.URL))
	_, err := pricing.GetQuote(ctx, "xauusd")
	require.Error(t, err)
	assert.False(t, IsRateLimit(err))
	assert.ErrorIs(t, err, context.Canceled)

	yields := NewYieldsClient("test-key", WithYieldsBaseURL(srv.URL))
	_, err = yields.GetLatestYield(ctx, "DGS10")
	require.Error(t, err)
	assert.False(t, IsRateLimit(err))
	assert.ErrorIs(t, err, context.Canceled)
}
