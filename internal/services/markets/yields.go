package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/speculor/internal/models"
)

const (
	// DefaultYieldsBaseURL is the base URL for the economic data provider.
	DefaultYieldsBaseURL = "https://api.stlouisfed.org"

	// DefaultYieldsTimeout is the default HTTP timeout.
	DefaultYieldsTimeout = 30 * time.Second

	// DefaultYieldsRateLimit is the default rate limit (requests per second).
	DefaultYieldsRateLimit = 2
)

// YieldsClient fetches government yield series from an economic data
// provider. Yields come only from here; when a series fails it is marked
// unavailable rather than substituted from the general price provider.
type YieldsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// YieldsOption configures the YieldsClient.
type YieldsOption func(*YieldsClient)

// WithYieldsBaseURL sets a custom base URL.
func WithYieldsBaseURL(baseURL string) YieldsOption {
	return func(c *YieldsClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithYieldsHTTPClient sets a custom HTTP client.
func WithYieldsHTTPClient(httpClient *http.Client) YieldsOption {
	return func(c *YieldsClient) {
		c.httpClient = httpClient
	}
}

// WithYieldsLogger sets a logger.
func WithYieldsLogger(logger arbor.ILogger) YieldsOption {
	return func(c *YieldsClient) {
		c.logger = logger
	}
}

// NewYieldsClient creates an economic data provider client.
func NewYieldsClient(apiKey string, opts ...YieldsOption) *YieldsClient {
	c := &YieldsClient{
		baseURL: DefaultYieldsBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultYieldsTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultYieldsRateLimit), DefaultYieldsRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// GetLatestYield retrieves the most recent observation for a series
// (e.g. "DGS10", "DGS2") as a percentage yield.
func (c *YieldsClient) GetLatestYield(ctx context.Context, seriesID string) (*models.Quote, error) {
	// A Wait failure means the context ended, not a provider 429.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yields request aborted: %w", err)
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", "5")

	path := "/fred/series/observations"
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("series", seriesID).
			Msg("Yields provider request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfterHint(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	var result observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Observations arrive newest first; "." marks a missing value.
	for _, obs := range result.Observations {
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		value, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil || value <= 0 {
			continue
		}
		return &models.Quote{
			Symbol:    seriesID,
			Price:     value,
			Currency:  "%",
			Source:    "yields",
			Retrieved: time.Now(),
		}, nil
	}

	return nil, fmt.Errorf("no usable observation for series %s", seriesID)
}
