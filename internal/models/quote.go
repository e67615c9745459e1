package models

import "time"

// Quote is a single instrument quote from one provider.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Source    string    `json:"source"`
	Retrieved time.Time `json:"retrieved"`
}

// Available reports whether the quote carries a usable price.
// A non-positive price is never forwarded as data.
func (q *Quote) Available() bool {
	return q != nil && q.Price > 0
}

// QuoteResult is either a quote or an explicit unavailable marker.
// Values are never fabricated for failed lookups.
type QuoteResult struct {
	Quote *Quote `json:"quote,omitempty"`
	Error string `json:"error,omitempty"`
}

// Unavailable builds the marker recorded when a provider call fails
// or returns an unusable payload.
func Unavailable(reason string) QuoteResult {
	if reason == "" {
		reason = "Data not available"
	}
	return QuoteResult{Error: reason}
}

// Ok wraps a usable quote.
func Ok(q *Quote) QuoteResult {
	return QuoteResult{Quote: q}
}

// Available reports whether the result holds a usable quote.
func (r QuoteResult) Available() bool {
	return r.Quote.Available()
}
