package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/httpclient"
	"github.com/ternarybob/speculor/internal/models"
)

// ErrNoRecentData is returned when no document inside the recency
// window could be collected from any source after all fallbacks.
var ErrNoRecentData = errors.New("no recent data available from configured sources")

// Service assembles the corpus for one task: feed entries first, then
// a start-page crawl fallback, expanding the link budget once before
// giving up. The corpus is never silently empty.
type Service struct {
	sources        []models.Source
	feeds          *FeedReader
	fetcher        *Fetcher
	links          *LinkDiscoverer
	window         time.Duration
	minCorpusChars int
	linkBudget     int
	requestDelay   time.Duration
	logger         arbor.ILogger

	lastFetch map[string]time.Time
}

// NewService builds the collector from configuration.
func NewService(cfg common.CollectorConfig, sources []models.Source, logger arbor.ILogger) *Service {
	httpClient := httpclient.NewDefaultHTTPClient(cfg.RequestTimeout)

	return &Service{
		sources:        sources,
		feeds:          NewFeedReader(cfg.RequestTimeout, cfg.UserAgent, cfg.MaxDocChars, logger),
		fetcher:        NewFetcher(httpClient, cfg.UserAgent, cfg.MaxDocChars, logger),
		links:          NewLinkDiscoverer(httpClient, cfg.UserAgent, logger),
		window:         time.Duration(cfg.MaxAgeHours) * time.Hour,
		minCorpusChars: cfg.MinCorpusChars,
		linkBudget:     cfg.LinkBudget,
		requestDelay:   cfg.RequestDelay,
		logger:         logger,
		lastFetch:      make(map[string]time.Time),
	}
}

// newServiceForTest wires a collector around an existing fetch stack.
func newServiceForTest(sources []models.Source, httpClient *http.Client, window time.Duration, minCorpusChars, linkBudget int, logger arbor.ILogger) *Service {
	return &Service{
		sources:        sources,
		feeds:          NewFeedReader(httpClient.Timeout, "", 0, logger),
		fetcher:        NewFetcher(httpClient, "", 0, logger),
		links:          NewLinkDiscoverer(httpClient, "", logger),
		window:         window,
		minCorpusChars: minCorpusChars,
		linkBudget:     linkBudget,
		logger:         logger,
		lastFetch:      make(map[string]time.Time),
	}
}

// Collect runs the collection algorithm and returns the corpus sorted
// by publication time, newest first.
func (s *Service) Collect(ctx context.Context) ([]*models.ScrapedDocument, error) {
	now := time.Now()
	seen := make(map[string]bool)
	var corpus []*models.ScrapedDocument

	// Phase 1: feeds.
	for _, source := range s.sources {
		for _, doc := range s.feeds.ReadSource(ctx, source, now, s.window) {
			if seen[doc.URL] {
				continue
			}
			seen[doc.URL] = true
			corpus = append(corpus, doc)
		}
	}

	s.logger.Debug().
		Int("documents", len(corpus)).
		Int("chars", totalChars(corpus)).
		Msg("Feed collection complete")

	// Phase 2: crawl fallback, expanding the budget once.
	for pass := 1; pass <= 2 && totalChars(corpus) < s.minCorpusChars; pass++ {
		budget := s.linkBudget * pass
		added := s.crawlPass(ctx, now, budget, seen, &corpus)

		s.logger.Debug().
			Int("pass", pass).
			Int("budget", budget).
			Int("added", added).
			Int("chars", totalChars(corpus)).
			Msg("Crawl pass complete")

		if added == 0 {
			break
		}
	}

	if len(corpus) == 0 {
		return nil, ErrNoRecentData
	}
	if totalChars(corpus) < s.minCorpusChars {
		s.logger.Warn().
			Int("chars", totalChars(corpus)).
			Int("minimum", s.minCorpusChars).
			Msg("Corpus below character budget after all fallbacks")
	}

	sort.SliceStable(corpus, func(i, j int) bool {
		return corpus[i].PublishedOrRetrieved().After(corpus[j].PublishedOrRetrieved())
	})
	return corpus, nil
}

// crawlPass discovers and fetches candidate articles for every source
// until the character budget is met. Returns how many documents were
// added.
func (s *Service) crawlPass(ctx context.Context, now time.Time, budget int, seen map[string]bool, corpus *[]*models.ScrapedDocument) int {
	added := 0

	for _, source := range s.sources {
		if len(source.StartPages) == 0 {
			continue
		}
		if totalChars(*corpus) >= s.minCorpusChars {
			break
		}

		candidates := s.links.Discover(ctx, source, budget, seen)
		for _, candidate := range candidates {
			if totalChars(*corpus) >= s.minCorpusChars {
				break
			}
			seen[candidate] = true

			if err := s.pace(ctx, candidate); err != nil {
				return added
			}

			doc, err := s.fetcher.Fetch(ctx, candidate, source.Name)
			if err != nil {
				s.logger.Debug().
					Str("url", candidate).
					Err(err).
					Msg("Candidate fetch failed, skipping")
				continue
			}
			if doc.Text == "" {
				continue
			}
			if !doc.AgeWithin(now, s.window) {
				continue
			}

			*corpus = append(*corpus, doc)
			added++
		}
	}

	return added
}

// pace enforces the per-domain minimum delay between fetches.
func (s *Service) pace(ctx context.Context, rawURL string) error {
	if s.requestDelay <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	if last, ok := s.lastFetch[u.Host]; ok {
		if wait := s.requestDelay - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.lastFetch[u.Host] = time.Now()
	return nil
}

func totalChars(docs []*models.ScrapedDocument) int {
	total := 0
	for _, doc := range docs {
		total += len(doc.Text)
	}
	return total
}
