package models

import "time"

// ScrapedDocument is one collected page or feed item. It lives only
// for the duration of a single task and is never persisted on its own.
type ScrapedDocument struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	Published *time.Time `json:"published,omitempty"`
	Source    string     `json:"source"`
	Retrieved time.Time  `json:"retrieved"`
}

// PublishedOrRetrieved returns the document's best-known timestamp.
// Retrieval time is the last resort when no publication time could be
// extracted.
func (d *ScrapedDocument) PublishedOrRetrieved() time.Time {
	if d.Published != nil {
		return *d.Published
	}
	return d.Retrieved
}

// AgeWithin reports whether the document's publication time falls
// inside the recency window ending at now.
func (d *ScrapedDocument) AgeWithin(now time.Time, window time.Duration) bool {
	return now.Sub(d.PublishedOrRetrieved()) <= window
}
