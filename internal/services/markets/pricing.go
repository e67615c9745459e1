package markets

import (
	"context"
	"encoding/csv"
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
	// DefaultPricingBaseURL is the base URL for the quote provider.
	DefaultPricingBaseURL = "https://stooq.com"

	// DefaultPricingTimeout is the default HTTP timeout.
	DefaultPricingTimeout = 30 * time.Second

	// DefaultPricingRateLimit is the default rate limit (requests per second).
	DefaultPricingRateLimit = 5
)

// PricingClient fetches quotes and daily price history from a CSV quote
// provider.
type PricingClient struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// PricingOption configures the PricingClient.
type PricingOption func(*PricingClient)

// WithPricingBaseURL sets a custom base URL.
func WithPricingBaseURL(baseURL string) PricingOption {
	return func(c *PricingClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithPricingHTTPClient sets a custom HTTP client.
func WithPricingHTTPClient(httpClient *http.Client) PricingOption {
	return func(c *PricingClient) {
		c.httpClient = httpClient
	}
}

// WithPricingLogger sets a logger.
func WithPricingLogger(logger arbor.ILogger) PricingOption {
	return func(c *PricingClient) {
		c.logger = logger
	}
}

// NewPricingClient creates a quote provider client.
func NewPricingClient(opts ...PricingOption) *PricingClient {
	c := &PricingClient{
		baseURL: DefaultPricingBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultPricingTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultPricingRateLimit), DefaultPricingRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// getCSV performs a GET request and parses the CSV body.
func (c *PricingClient) getCSV(ctx context.Context, path string, params url.Values) ([][]string, error) {
	// A Wait failure means the context ended, not a provider 429.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pricing request aborted: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Pricing provider request")
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

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV response: %w", err)
	}
	return records, nil
}

// GetQuote retrieves the latest quote for a symbol.
// Row format: Symbol,Date,Time,Open,High,Low,Close,Volume ("N/D" = no data).
func (c *PricingClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("s", symbol)
	params.Set("f", "sd2t2ohlcv")
	params.Set("h", "")
	params.Set("e", "csv")

	records, err := c.getCSV(ctx, "/q/l/", params)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "empty quote response", Endpoint: "/q/l/"}
	}

	row := records[1]
	if len(row) < 8 {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "malformed quote row", Endpoint: "/q/l/"}
	}

	open, err := parsePrice(row[3])
	if err != nil {
		return nil, fmt.Errorf("no data for symbol %s: %w", symbol, err)
	}
	closePrice, err := parsePrice(row[6])
	if err != nil {
		return nil, fmt.Errorf("no data for symbol %s: %w", symbol, err)
	}
	if closePrice <= 0 {
		return nil, fmt.Errorf("non-positive price %.2f for symbol %s", closePrice, symbol)
	}

	volume, _ := strconv.ParseInt(strings.TrimSpace(row[7]), 10, 64)

	change := closePrice - open
	changePct := 0.0
	if open > 0 {
		changePct = change / open * 100
	}

	return &models.Quote{
		Symbol:    symbol,
		Price:     closePrice,
		Change:    change,
		ChangePct: changePct,
		Volume:    volume,
		Source:    "pricing",
		Retrieved: time.Now(),
	}, nil
}

// GetDailyCloses retrieves up to days of daily closing prices for a
// symbol, oldest first.
func (c *PricingClient) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	params := url.Values{}
	params.Set("s", symbol)
	params.Set("i", "d")

	records, err := c.getCSV(ctx, "/q/d/l/", params)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "empty history response", Endpoint: "/q/d/l/"}
	}

	// Rows: Date,Open,High,Low,Close,Volume; skip the header.
	closes := make([]float64, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 5 {
			continue
		}
		price, err := parsePrice(row[4])
		if err != nil || price <= 0 {
			continue
		}
		closes = append(closes, price)
	}

	if days > 0 && len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/D") || strings.EqualFold(s, "N/A") {
		return 0, fmt.Errorf("no data")
	}
	return strconv.ParseFloat(s, 64)
}

// retryAfterHint reads a Retry-After header (seconds) with a 1s floor.
func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
