package collector

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/httpclient"
	"github.com/ternarybob/speculor/internal/models"
)

// FeedReader pulls recent entries from RSS/Atom feeds. A failing feed
// is skipped, never required.
type FeedReader struct {
	parser      *gofeed.Parser
	maxDocChars int
	logger      arbor.ILogger
}

// NewFeedReader creates a feed reader. The parser carries its own HTTP
// client so feed fetches honor the same timeout as page fetches.
func NewFeedReader(timeout time.Duration, userAgent string, maxDocChars int, logger arbor.ILogger) *FeedReader {
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	parser.Client = httpclient.NewDefaultHTTPClient(timeout)

	return &FeedReader{
		parser:      parser,
		maxDocChars: maxDocChars,
		logger:      logger,
	}
}

// ReadSource fetches all of a source's feeds and returns the entries
// inside the recency window ending at now.
func (r *FeedReader) ReadSource(ctx context.Context, source models.Source, now time.Time, window time.Duration) []*models.ScrapedDocument {
	var docs []*models.ScrapedDocument

	for _, feedURL := range source.FeedURLs {
		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			r.logger.Warn().
				Str("source", source.Name).
				Str("feed", feedURL).
				Err(err).
				Msg("Feed fetch failed, skipping")
			continue
		}

		for _, item := range feed.Items {
			doc := r.itemToDocument(item, source.Name)
			if doc == nil {
				continue
			}
			if !doc.AgeWithin(now, window) {
				continue
			}
			docs = append(docs, doc)
		}
	}

	return docs
}

// itemToDocument converts one feed item; items with no usable text are
// dropped.
func (r *FeedReader) itemToDocument(item *gofeed.Item, sourceName string) *models.ScrapedDocument {
	if item == nil || item.Link == "" {
		return nil
	}

	text := item.Content
	if strings.TrimSpace(text) == "" {
		text = item.Description
	}
	text = strings.TrimSpace(stripTags(text))
	if text == "" {
		return nil
	}
	if r.maxDocChars > 0 && len(text) > r.maxDocChars {
		text = text[:r.maxDocChars]
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}

	return &models.ScrapedDocument{
		URL:       item.Link,
		Title:     strings.TrimSpace(item.Title),
		Text:      text,
		Published: published,
		Source:    sourceName,
		Retrieved: time.Now(),
	}
}

// stripTags removes inline HTML from feed item bodies.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
