package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Instrument categories in a snapshot.
const (
	CategoryEquities    = "equities"
	CategoryIndices     = "indices"
	CategoryVolatility  = "volatility"
	CategoryCommodities = "commodities"
	CategoryCrypto      = "crypto"
	CategoryCurrency    = "currency"
	CategoryYields      = "yields"
)

// Analytics holds derived values computed from the raw quotes.
// Each pointer is nil when its inputs were unavailable.
type Analytics struct {
	GoldSilverRatio *float64 `json:"gold_silver_ratio,omitempty"`
	CurveSpreadBps  *float64 `json:"curve_spread_bps,omitempty"`
	MomentumRSI     *float64 `json:"momentum_rsi,omitempty"`
	MarketPhase     string   `json:"market_phase,omitempty"`
	FearGreedIndex  *int     `json:"fear_greed_index,omitempty"`
	BTCDominancePct *float64 `json:"btc_dominance_pct,omitempty"`
}

// MarketSnapshot is a point-in-time aggregation over the instrument
// catalogue. It is rebuilt fresh per use and never patched in place.
type MarketSnapshot struct {
	Categories map[string]map[string]QuoteResult `json:"categories"`
	Analytics  Analytics                         `json:"analytics"`
	BuiltAt    time.Time                         `json:"built_at"`
}

// NewMarketSnapshot creates an empty snapshot stamped now.
func NewMarketSnapshot() *MarketSnapshot {
	return &MarketSnapshot{
		Categories: make(map[string]map[string]QuoteResult),
		BuiltAt:    time.Now(),
	}
}

// Set records one instrument result under a category.
func (s *MarketSnapshot) Set(category, label string, result QuoteResult) {
	if s.Categories[category] == nil {
		s.Categories[category] = make(map[string]QuoteResult)
	}
	s.Categories[category][label] = result
}

// Get returns the recorded result for an instrument.
func (s *MarketSnapshot) Get(category, label string) (QuoteResult, bool) {
	m, ok := s.Categories[category]
	if !ok {
		return QuoteResult{}, false
	}
	r, ok := m[label]
	return r, ok
}

// AvailableCount returns how many instruments carry usable quotes.
func (s *MarketSnapshot) AvailableCount() int {
	count := 0
	for _, instruments := range s.Categories {
		for _, r := range instruments {
			if r.Available() {
				count++
			}
		}
	}
	return count
}

// Render produces a plain-text excerpt of the snapshot for prompt
// embedding, truncated to maxChars (0 = unlimited).
func (s *MarketSnapshot) Render(maxChars int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Market snapshot (as of %s UTC)\n", s.BuiltAt.UTC().Format("2006-01-02 15:04")))

	categories := make([]string, 0, len(s.Categories))
	for c := range s.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		instruments := s.Categories[category]
		labels := make([]string, 0, len(instruments))
		for l := range instruments {
			labels = append(labels, l)
		}
		sort.Strings(labels)

		b.WriteString(fmt.Sprintf("\n[%s]\n", category))
		for _, label := range labels {
			r := instruments[label]
			if r.Available() {
				b.WriteString(fmt.Sprintf("  %s: %.2f (%+.2f%%)\n", label, r.Quote.Price, r.Quote.ChangePct))
			} else {
				b.WriteString(fmt.Sprintf("  %s: unavailable (%s)\n", label, r.Error))
			}
		}
	}

	b.WriteString("\n[derived]\n")
	if s.Analytics.GoldSilverRatio != nil {
		b.WriteString(fmt.Sprintf("  gold/silver ratio: %.2f\n", *s.Analytics.GoldSilverRatio))
	}
	if s.Analytics.CurveSpreadBps != nil {
		b.WriteString(fmt.Sprintf("  yield curve spread: %.1f bps\n", *s.Analytics.CurveSpreadBps))
	}
	if s.Analytics.MomentumRSI != nil {
		b.WriteString(fmt.Sprintf("  momentum RSI(14): %.1f\n", *s.Analytics.MomentumRSI))
	}
	if s.Analytics.MarketPhase != "" {
		b.WriteString(fmt.Sprintf("  market phase: %s\n", s.Analytics.MarketPhase))
	}
	if s.Analytics.FearGreedIndex != nil {
		b.WriteString(fmt.Sprintf("  fear & greed index: %d\n", *s.Analytics.FearGreedIndex))
	}
	if s.Analytics.BTCDominancePct != nil {
		b.WriteString(fmt.Sprintf("  BTC dominance: %.1f%%\n", *s.Analytics.BTCDominancePct))
	}

	text := b.String()
	if maxChars > 0 && len(text) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + "\n... [truncated]"
	}
	return text
}
