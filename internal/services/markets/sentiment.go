package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	// DefaultFearGreedURL is the fear & greed index endpoint.
	DefaultFearGreedURL = "https://api.alternative.me/fng/"

	// DefaultDominanceURL is the global crypto market data endpoint.
	DefaultDominanceURL = "https://api.coingecko.com/api/v3/global"

	// DefaultSentimentAttempts bounds 429 retries per call.
	DefaultSentimentAttempts = 3

	// DefaultSentimentBaseDelay is the first retry delay; subsequent
	// retries wait a multiple of it.
	DefaultSentimentBaseDelay = 2 * time.Second
)

// SentimentClient fetches externally sourced sentiment and dominance
// indices. Both endpoints rate-limit aggressively, so 429 responses are
// retried with increasing delay up to a fixed attempt count, after which
// the analytic is omitted rather than blocking the snapshot.
type SentimentClient struct {
	fearGreedURL string
	dominanceURL string
	httpClient   *http.Client
	logger       arbor.ILogger
	maxAttempts  int
	baseDelay    time.Duration
}

// SentimentOption configures the SentimentClient.
type SentimentOption func(*SentimentClient)

// WithFearGreedURL overrides the fear & greed endpoint.
func WithFearGreedURL(u string) SentimentOption {
	return func(c *SentimentClient) {
		if u != "" {
			c.fearGreedURL = u
		}
	}
}

// WithDominanceURL overrides the dominance endpoint.
func WithDominanceURL(u string) SentimentOption {
	return func(c *SentimentClient) {
		if u != "" {
			c.dominanceURL = u
		}
	}
}

// WithSentimentHTTPClient sets a custom HTTP client.
func WithSentimentHTTPClient(httpClient *http.Client) SentimentOption {
	return func(c *SentimentClient) {
		c.httpClient = httpClient
	}
}

// WithSentimentLogger sets a logger.
func WithSentimentLogger(logger arbor.ILogger) SentimentOption {
	return func(c *SentimentClient) {
		c.logger = logger
	}
}

// WithSentimentRetry sets the 429 retry bound and base delay.
func WithSentimentRetry(maxAttempts int, baseDelay time.Duration) SentimentOption {
	return func(c *SentimentClient) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// NewSentimentClient creates a sentiment index client.
func NewSentimentClient(opts ...SentimentOption) *SentimentClient {
	c := &SentimentClient{
		fearGreedURL: DefaultFearGreedURL,
		dominanceURL: DefaultDominanceURL,
		httpClient: &http.Client{
			Timeout: DefaultYieldsTimeout,
		},
		maxAttempts: DefaultSentimentAttempts,
		baseDelay:   DefaultSentimentBaseDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// getWithRetry performs a GET, retrying 429 responses with increasing
// delay. Attempt n waits n * baseDelay before retrying.
func (c *SentimentClient) getWithRetry(ctx context.Context, rawURL string, result interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = &RateLimitError{RetryAfter: retryAfterHint(resp)}

			if attempt == c.maxAttempts {
				break
			}

			wait := time.Duration(attempt) * c.baseDelay
			if c.logger != nil {
				c.logger.Debug().
					Int("attempt", attempt).
					Str("wait", wait.String()).
					Msg("Sentiment provider rate limited, backing off")
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
				Endpoint:   rawURL,
			}
		}

		err = json.NewDecoder(resp.Body).Decode(result)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return lastErr
}

type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// GetFearGreedIndex retrieves the current fear & greed index (0-100).
func (c *SentimentClient) GetFearGreedIndex(ctx context.Context) (int, error) {
	var result fearGreedResponse
	if err := c.getWithRetry(ctx, c.fearGreedURL, &result); err != nil {
		return 0, err
	}
	if len(result.Data) == 0 {
		return 0, fmt.Errorf("empty fear & greed response")
	}

	value, err := strconv.Atoi(result.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("invalid fear & greed value %q: %w", result.Data[0].Value, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("fear & greed value %d out of range", value)
	}
	return value, nil
}

type dominanceResponse struct {
	Data struct {
		MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
	} `json:"data"`
}

// GetBTCDominance retrieves bitcoin's share of total crypto market cap.
func (c *SentimentClient) GetBTCDominance(ctx context.Context) (float64, error) {
	var result dominanceResponse
	if err := c.getWithRetry(ctx, c.dominanceURL, &result); err != nil {
		return 0, err
	}

	pct, ok := result.Data.MarketCapPercentage["btc"]
	if !ok || pct <= 0 {
		return 0, fmt.Errorf("dominance payload missing btc percentage")
	}
	return pct, nil
}
