package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is a declarative content-source descriptor: where to find
// feeds, where to start a crawl, and what an article URL looks like
// on that domain. The collector is driven entirely by this data.
type Source struct {
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	FeedURLs        []string `json:"feed_urls,omitempty"`
	StartPages      []string `json:"start_pages,omitempty"`
	ArticlePatterns []string `json:"article_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// Validate validates the source descriptor.
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if s.Domain == "" {
		return fmt.Errorf("source domain is required")
	}
	if len(s.FeedURLs) == 0 && len(s.StartPages) == 0 {
		return fmt.Errorf("source %s needs at least one feed URL or start page", s.Name)
	}
	return nil
}

// IsArticleURL applies the source's link predicate: the URL must sit
// on the source domain, match one of the article patterns (all URLs
// pass when none are configured), and match no exclude pattern.
func (s *Source) IsArticleURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host != strings.TrimPrefix(s.Domain, "www.") {
		return false
	}

	for _, pattern := range s.ExcludePatterns {
		if strings.Contains(rawURL, pattern) {
			return false
		}
	}

	if len(s.ArticlePatterns) == 0 {
		return true
	}
	for _, pattern := range s.ArticlePatterns {
		if strings.Contains(rawURL, pattern) {
			return true
		}
	}
	return false
}
