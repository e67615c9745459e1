package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/models"
)

// LinkDiscoverer crawls a source's start pages and returns candidate
// article URLs matching the source's link predicate.
type LinkDiscoverer struct {
	httpClient *http.Client
	userAgent  string
	logger     arbor.ILogger
}

// NewLinkDiscoverer creates a link discoverer.
func NewLinkDiscoverer(httpClient *http.Client, userAgent string, logger arbor.ILogger) *LinkDiscoverer {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &LinkDiscoverer{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Discover fetches each start page, extracts anchors, resolves them
// against the page URL, applies the source's article predicate and
// de-duplicates. At most budget URLs are returned; seen URLs are
// excluded so repeat passes surface fresh candidates.
func (d *LinkDiscoverer) Discover(ctx context.Context, source models.Source, budget int, seen map[string]bool) []string {
	var candidates []string
	found := make(map[string]bool)

	for _, startPage := range source.StartPages {
		if budget > 0 && len(candidates) >= budget {
			break
		}

		links, err := d.extractAnchors(ctx, startPage)
		if err != nil {
			d.logger.Warn().
				Str("source", source.Name).
				Str("page", startPage).
				Err(err).
				Msg("Start page fetch failed, skipping")
			continue
		}

		for _, link := range links {
			if budget > 0 && len(candidates) >= budget {
				break
			}
			if found[link] || seen[link] {
				continue
			}
			if !source.IsArticleURL(link) {
				continue
			}
			found[link] = true
			candidates = append(candidates, link)
		}
	}

	return candidates
}

// extractAnchors returns all absolute anchor targets on a page.
func (d *LinkDiscoverer) extractAnchors(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var links []string
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}

		resolved := href
		if base != nil {
			if u, err := base.Parse(href); err == nil {
				u.Fragment = ""
				resolved = u.String()
			}
		}
		links = append(links, resolved)
	})

	return links, nil
}
