// Package collector assembles a recent-document corpus from a
// configured source set: feeds first, start-page crawling as fallback,
// all bounded by a recency window and a character budget.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/models"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; speculor/1.0)"

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 2 << 20

// Fetcher retrieves a single page and extracts its main text and a
// best-effort publication time.
type Fetcher struct {
	httpClient  *http.Client
	converter   *md.Converter
	userAgent   string
	maxDocChars int
	retry       *common.RetryPolicy
	logger      arbor.ILogger
}

// NewFetcher creates a page fetcher. maxDocChars bounds the extracted
// text per document (0 = unbounded).
func NewFetcher(httpClient *http.Client, userAgent string, maxDocChars int, logger arbor.ILogger) *Fetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	converter := md.NewConverter("", true, nil)

	return &Fetcher{
		httpClient:  httpClient,
		converter:   converter,
		userAgent:   userAgent,
		maxDocChars: maxDocChars,
		retry:       common.NewRetryPolicy(),
		logger:      logger,
	}
}

// Fetch retrieves a page and returns it as a document. The publication
// time falls back from structured metadata to the Last-Modified header
// to the retrieval time.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, sourceName string) (*models.ScrapedDocument, error) {
	var body []byte
	var lastModified string

	_, err := f.retry.ExecuteWithRetry(ctx, f.logger, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read %s: %w", pageURL, err)
		}
		body = b
		lastModified = resp.Header.Get("Last-Modified")
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	retrieved := time.Now()
	published := f.extractPublished(doc, lastModified)

	text := f.extractText(doc)
	if f.maxDocChars > 0 && len(text) > f.maxDocChars {
		text = text[:f.maxDocChars]
	}

	return &models.ScrapedDocument{
		URL:       pageURL,
		Title:     extractTitle(doc),
		Text:      text,
		Published: published,
		Source:    sourceName,
		Retrieved: retrieved,
	}, nil
}

// extractText pulls the main content region and converts it to
// markdown-flavored plain text.
func (f *Fetcher) extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()

	// Prefer a dedicated content container when one exists.
	for _, selector := range []string{"article", "main", "[role=main]", "#content", ".article-body", ".post-content"} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			if html, err := sel.First().Html(); err == nil {
				if text, err := f.converter.ConvertString(html); err == nil && strings.TrimSpace(text) != "" {
					return strings.TrimSpace(text)
				}
			}
		}
	}

	if html, err := doc.Find("body").Html(); err == nil {
		if text, err := f.converter.ConvertString(html); err == nil {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(doc.Text())
}

// extractPublished tries structured metadata first, then the
// Last-Modified header. Returns nil when neither yields a time, in
// which case retrieval time stands in.
func (f *Fetcher) extractPublished(doc *goquery.Document, lastModified string) *time.Time {
	metaSelectors := []struct {
		selector string
		attr     string
	}{
		{`meta[property="article:published_time"]`, "content"},
		{`meta[name="article:published_time"]`, "content"},
		{`meta[property="og:published_time"]`, "content"},
		{`meta[name="date"]`, "content"},
		{`meta[name="publish-date"]`, "content"},
		{`meta[itemprop="datePublished"]`, "content"},
		{`time[datetime]`, "datetime"},
	}

	for _, m := range metaSelectors {
		value, exists := doc.Find(m.selector).First().Attr(m.attr)
		if !exists || value == "" {
			continue
		}
		if t, ok := parseTimestamp(value); ok {
			return &t
		}
	}

	if lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			return &t
		}
	}
	return nil
}

// parseTimestamp accepts the common article timestamp formats.
func parseTimestamp(value string) (time.Time, bool) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	value = strings.TrimSpace(value)
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractTitle(doc *goquery.Document) string {
	if og, exists := doc.Find(`meta[property="og:title"]`).First().Attr("content"); exists && og != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
