package markets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/models"
)

// fakeProviders stands up pricing + yields + sentiment endpoints. The
// pricing handler can override the close price per symbol.
func fakeProviders(t *testing.T, priceOverrides map[string]float64) (*PricingClient, *YieldsClient, *SentimentClient) {
	t.Helper()

	pricing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("s")
		if strings.HasPrefix(r.URL.Path, "/q/d/l/") {
			fmt.Fprint(w, "Date,Open,High,Low,Close,Volume\n")
			for i := 0; i < 20; i++ {
				fmt.Fprintf(w, "2025-06-%02d,100,101,99,%d,1000\n", i+1, 100+i)
			}
			return
		}
		price := 100.0
		if override, ok := priceOverrides[symbol]; ok {
			price = override
		}
		fmt.Fprint(w, "Symbol,Date,Time,Open,High,Low,Close,Volume\n")
		fmt.Fprintf(w, "%s,2025-06-16,22:00:00,99.5,101,99,%g,1000000\n", symbol, price)
	}))
	t.Cleanup(pricing.Close)

	yields := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		series := r.URL.Query().Get("series_id")
		value := "4.25"
		if series == "DGS2" {
			value = "3.75"
		}
		fmt.Fprintf(w, `{"observations":[{"date":"2025-06-16","value":"%s"}]}`, value)
	}))
	t.Cleanup(yields.Close)

	sentiment := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "global") {
			fmt.Fprint(w, `{"data":{"market_cap_percentage":{"btc":52.3}}}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"value":"60"}]}`)
	}))
	t.Cleanup(sentiment.Close)

	return NewPricingClient(WithPricingBaseURL(pricing.URL)),
		NewYieldsClient("test-key", WithYieldsBaseURL(yields.URL)),
		NewSentimentClient(
			WithFearGreedURL(sentiment.URL+"/fng/"),
			WithDominanceURL(sentiment.URL+"/global"),
		)
}

func newTestAggregator(t *testing.T, priceOverrides map[string]float64) *Aggregator {
	t.Helper()
	pricing, yields, sentiment := fakeProviders(t, priceOverrides)
	return NewAggregator(
		pricing, yields, sentiment,
		NewQuoteCache(time.Minute),
		NewPacingLimiter(time.Millisecond),
		arbor.NewLogger(),
	)
}

func TestBuildSnapshotCoversCatalogue(t *testing.T) {
	agg := newTestAggregator(t, nil)

	snapshot := agg.BuildSnapshot(context.Background())
	require.NotNil(t, snapshot)

	total := 0
	for _, instruments := range snapshot.Categories {
		total += len(instruments)
	}
	assert.Equal(t, len(catalogue), total, "every catalogue instrument gets an entry")
	assert.Equal(t, len(catalogue), snapshot.AvailableCount())

	tenYear, ok := snapshot.Get(models.CategoryYields, "US 10Y")
	require.True(t, ok)
	require.True(t, tenYear.Available())
	assert.InDelta(t, 4.25, tenYear.Quote.Price, 0.001)

	require.NotNil(t, snapshot.Analytics.CurveSpreadBps)
	assert.InDelta(t, 50.0, *snapshot.Analytics.CurveSpreadBps, 0.001)
	require.NotNil(t, snapshot.Analytics.GoldSilverRatio)
	require.NotNil(t, snapshot.Analytics.FearGreedIndex)
	assert.Equal(t, 60, *snapshot.Analytics.FearGreedIndex)
	require.NotNil(t, snapshot.Analytics.BTCDominancePct)
	assert.NotEmpty(t, snapshot.Analytics.MarketPhase)
}

// A provider returning a negative price yields an explicit unavailable
// marker, never the negative value.
func TestBuildSnapshotNegativePriceBecomesUnavailable(t *testing.T) {
	agg := newTestAggregator(t, map[string]float64{"xauusd": -5})

	snapshot := agg.BuildSnapshot(context.Background())

	gold, ok := snapshot.Get(models.CategoryCommodities, "Gold")
	require.True(t, ok)
	assert.False(t, gold.Available())
	assert.Nil(t, gold.Quote)
	assert.Equal(t, "Data not available", gold.Error)

	// Silver is unaffected, so the ratio analytic is simply omitted
	silver, ok := snapshot.Get(models.CategoryCommodities, "Silver")
	require.True(t, ok)
	assert.True(t, silver.Available())
	assert.Nil(t, snapshot.Analytics.GoldSilverRatio)
}

func TestBuildSnapshotToleratesYieldsOutage(t *testing.T) {
	pricing, _, sentiment := fakeProviders(t, nil)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	agg := NewAggregator(
		pricing,
		NewYieldsClient("test-key", WithYieldsBaseURL(down.URL)),
		sentiment,
		NewQuoteCache(0),
		NewPacingLimiter(time.Millisecond),
		arbor.NewLogger(),
	)

	snapshot := agg.BuildSnapshot(context.Background())

	tenYear, ok := snapshot.Get(models.CategoryYields, "US 10Y")
	require.True(t, ok)
	assert.False(t, tenYear.Available(), "yields outage must not substitute another provider")
	assert.Nil(t, snapshot.Analytics.CurveSpreadBps)

	// The rest of the snapshot still builds
	assert.Greater(t, snapshot.AvailableCount(), 0)
}

func TestBuildSnapshotUsesCache(t *testing.T) {
	var quoteCalls int32
	pricing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/q/l/") {
			quoteCalls++
		}
		symbol := r.URL.Query().Get("s")
		if strings.HasPrefix(r.URL.Path, "/q/d/l/") {
			fmt.Fprint(w, "Date,Open,High,Low,Close,Volume\n2025-06-16,100,101,99,100,1000\n")
			return
		}
		fmt.Fprint(w, "Symbol,Date,Time,Open,High,Low,Close,Volume\n")
		fmt.Fprintf(w, "%s,2025-06-16,22:00:00,99.5,101,99,100,1000000\n", symbol)
	}))
	t.Cleanup(pricing.Close)

	_, yields, sentiment := fakeProviders(t, nil)

	agg := NewAggregator(
		NewPricingClient(WithPricingBaseURL(pricing.URL)),
		yields, sentiment,
		NewQuoteCache(time.Minute),
		NewPacingLimiter(time.Millisecond),
		arbor.NewLogger(),
	)

	ctx := context.Background()
	agg.BuildSnapshot(ctx)
	first := quoteCalls
	agg.BuildSnapshot(ctx)

	assert.Equal(t, first, quoteCalls, "second snapshot should be served from cache")
}

// deadProviders returns clients pointed at an already-closed endpoint,
// so every call fails with a connection error.
func deadProviders(t *testing.T) (*PricingClient, *YieldsClient, *SentimentClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	return NewPricingClient(WithPricingBaseURL(deadURL)),
		NewYieldsClient("test-key", WithYieldsBaseURL(deadURL)),
		NewSentimentClient(
			WithFearGreedURL(deadURL+"/fng/"),
			WithDominanceURL(deadURL+"/global"),
		)
}

func TestBuildSnapshotReusesRetainedWithinMaxAge(t *testing.T) {
	agg := newTestAggregator(t, nil)
	agg.snapshotMaxAge = time.Hour

	first := agg.BuildSnapshot(context.Background())
	require.Positive(t, first.AvailableCount())

	// Providers go dark and the quote cache is emptied
	agg.pricing, agg.yields, agg.sentiment = deadProviders(t)
	agg.cache.Clear()

	second := agg.BuildSnapshot(context.Background())
	assert.Equal(t, first.BuiltAt, second.BuiltAt, "retained snapshot served while fresh")
	assert.Equal(t, first.AvailableCount(), second.AvailableCount())
}

func TestBuildSnapshotDropsRetainedBeyondMaxAge(t *testing.T) {
	pricing, yields, sentiment := deadProviders(t)
	agg := NewAggregator(
		pricing, yields, sentiment,
		NewQuoteCache(0),
		NewPacingLimiter(time.Millisecond),
		arbor.NewLogger(),
		WithSnapshotMaxAge(time.Hour),
	)

	stale := models.NewMarketSnapshot()
	stale.BuiltAt = time.Now().Add(-2 * time.Hour)
	stale.Set(models.CategoryEquities, "S&P 500", models.Ok(&models.Quote{Symbol: "^spx", Price: 5000}))
	agg.lastGood = stale

	snapshot := agg.BuildSnapshot(context.Background())
	assert.Zero(t, snapshot.AvailableCount(), "stale retained snapshot must not be reused")
}
