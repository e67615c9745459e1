// Package markets builds point-in-time financial snapshots from a fixed
// instrument catalogue. One provider serves each category; per-instrument
// failure degrades to an explicit unavailable marker, never a fabricated
// value.
package markets

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a non-2xx or malformed response from a data provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents an HTTP 429 from a data provider.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limit exceeded, retry after %v", e.RetryAfter)
}

// IsRateLimit reports whether err is a provider rate-limit error.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
