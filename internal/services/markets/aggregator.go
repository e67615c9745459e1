package markets

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/models"
)

// Provider classes used for pacing.
const (
	classPricing   = "pricing"
	classYields    = "yields"
	classSentiment = "sentiment"
)

// instrument binds one catalogue entry to its provider.
type instrument struct {
	Category string
	Label    string
	Symbol   string
	Class    string
}

// catalogue is the fixed instrument set every snapshot covers. Yields
// come from the economic data provider only; everything else from the
// price provider.
var catalogue = []instrument{
	{models.CategoryEquities, "S&P 500", "^spx", classPricing},
	{models.CategoryEquities, "Nasdaq 100", "^ndx", classPricing},
	{models.CategoryIndices, "Dow Jones", "^dji", classPricing},
	{models.CategoryIndices, "DAX", "^dax", classPricing},
	{models.CategoryVolatility, "VIX", "vi.f", classPricing},
	{models.CategoryCommodities, "Gold", "xauusd", classPricing},
	{models.CategoryCommodities, "Silver", "xagusd", classPricing},
	{models.CategoryCommodities, "WTI Crude", "cl.f", classPricing},
	{models.CategoryCrypto, "Bitcoin", "btcusd", classPricing},
	{models.CategoryCrypto, "Ethereum", "ethusd", classPricing},
	{models.CategoryCurrency, "US Dollar Index", "dx.f", classPricing},
	{models.CategoryYields, "US 10Y", "DGS10", classYields},
	{models.CategoryYields, "US 2Y", "DGS2", classYields},
}

// momentumSymbol feeds the RSI calculation.
const momentumSymbol = "^spx"

// Aggregator builds market snapshots from the instrument catalogue.
// Per-instrument failures degrade to unavailable markers; a snapshot is
// always produced.
type Aggregator struct {
	pricing   *PricingClient
	yields    *YieldsClient
	sentiment *SentimentClient
	cache     *QuoteCache
	limiter   *PacingLimiter
	logger    arbor.ILogger

	snapshotMaxAge time.Duration
	mu             sync.Mutex
	lastGood       *models.MarketSnapshot
}

// AggregatorOption customizes aggregator behavior.
type AggregatorOption func(*Aggregator)

// WithSnapshotMaxAge sets the freshness window for the retained
// snapshot. When every provider fails, the last successful snapshot is
// reused as long as it is younger than the window; 0 disables reuse.
func WithSnapshotMaxAge(maxAge time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.snapshotMaxAge = maxAge
	}
}

// NewAggregator wires the aggregator from its provider clients. The
// cache and limiter are owned by the caller so their state survives
// across snapshots.
func NewAggregator(pricing *PricingClient, yields *YieldsClient, sentiment *SentimentClient, cache *QuoteCache, limiter *PacingLimiter, logger arbor.ILogger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		pricing:   pricing,
		yields:    yields,
		sentiment: sentiment,
		cache:     cache,
		limiter:   limiter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildSnapshot produces a fresh snapshot across the full catalogue.
// It never fails as a whole; instruments whose provider call fails are
// recorded as unavailable.
func (a *Aggregator) BuildSnapshot(ctx context.Context) *models.MarketSnapshot {
	snapshot := models.NewMarketSnapshot()

	for _, inst := range catalogue {
		quote, err := a.fetchQuote(ctx, inst)
		if err != nil {
			a.logger.Debug().
				Str("instrument", inst.Label).
				Str("symbol", inst.Symbol).
				Err(err).
				Msg("Instrument unavailable")
			snapshot.Set(inst.Category, inst.Label, models.Unavailable("Data not available"))
			continue
		}
		snapshot.Set(inst.Category, inst.Label, models.Ok(quote))
	}

	a.computeAnalytics(ctx, snapshot)

	if snapshot.AvailableCount() == 0 {
		if last := a.retainedSnapshot(); last != nil {
			a.logger.Warn().
				Str("built_at", last.BuiltAt.Format(time.RFC3339)).
				Msg("All providers failed, reusing retained snapshot")
			return last
		}
	} else {
		a.mu.Lock()
		a.lastGood = snapshot
		a.mu.Unlock()
	}

	a.logger.Info().
		Int("available", snapshot.AvailableCount()).
		Int("catalogue", len(catalogue)).
		Msg("Market snapshot built")
	return snapshot
}

// retainedSnapshot returns the last successful snapshot when it is
// still inside the freshness window.
func (a *Aggregator) retainedSnapshot() *models.MarketSnapshot {
	if a.snapshotMaxAge <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastGood == nil || time.Since(a.lastGood.BuiltAt) > a.snapshotMaxAge {
		return nil
	}
	return a.lastGood
}

// fetchQuote resolves one instrument through cache, pacing, provider.
func (a *Aggregator) fetchQuote(ctx context.Context, inst instrument) (*models.Quote, error) {
	if cached, ok := a.cache.Get(inst.Symbol); ok {
		return cached, nil
	}

	if err := a.limiter.Wait(ctx, inst.Class); err != nil {
		return nil, err
	}

	var quote *models.Quote
	var err error
	switch inst.Class {
	case classYields:
		quote, err = a.yields.GetLatestYield(ctx, inst.Symbol)
	default:
		quote, err = a.pricing.GetQuote(ctx, inst.Symbol)
	}
	if err != nil {
		return nil, err
	}

	a.cache.Put(inst.Symbol, quote)
	return quote, nil
}

// computeAnalytics fills in derived values where the inputs exist.
// Each analytic is independent; a missing input only omits that value.
func (a *Aggregator) computeAnalytics(ctx context.Context, snapshot *models.MarketSnapshot) {
	if gold, ok := snapshot.Get(models.CategoryCommodities, "Gold"); ok && gold.Available() {
		if silver, ok := snapshot.Get(models.CategoryCommodities, "Silver"); ok && silver.Available() {
			snapshot.Analytics.GoldSilverRatio = GoldSilverRatio(gold.Quote.Price, silver.Quote.Price)
		}
	}

	if long, ok := snapshot.Get(models.CategoryYields, "US 10Y"); ok && long.Available() {
		if short, ok := snapshot.Get(models.CategoryYields, "US 2Y"); ok && short.Available() {
			snapshot.Analytics.CurveSpreadBps = CurveSpreadBps(long.Quote.Price, short.Quote.Price)
		}
	}

	if err := a.limiter.Wait(ctx, classPricing); err == nil {
		if closes, err := a.pricing.GetDailyCloses(ctx, momentumSymbol, 30); err == nil {
			snapshot.Analytics.MomentumRSI = RSI(closes, 14)
		} else {
			a.logger.Debug().Err(err).Msg("Momentum history unavailable")
		}
	}

	snapshot.Analytics.MarketPhase = MarketPhase(time.Now())

	if err := a.limiter.Wait(ctx, classSentiment); err == nil {
		if fg, err := a.sentiment.GetFearGreedIndex(ctx); err == nil {
			snapshot.Analytics.FearGreedIndex = &fg
		} else {
			a.logger.Debug().Err(err).Msg("Fear & greed index unavailable")
		}
	}

	if err := a.limiter.Wait(ctx, classSentiment); err == nil {
		if dom, err := a.sentiment.GetBTCDominance(ctx); err == nil {
			snapshot.Analytics.BTCDominancePct = &dom
		} else {
			a.logger.Debug().Err(err).Msg("BTC dominance unavailable")
		}
	}
}

// WarmCache refreshes the quote cache by building and discarding a
// snapshot; the scheduled refresh routine calls this.
func (a *Aggregator) WarmCache(ctx context.Context) {
	a.cache.Clear()
	a.BuildSnapshot(ctx)
}
