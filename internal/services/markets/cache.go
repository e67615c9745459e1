package markets

import (
	"sync"
	"time"

	"github.com/ternarybob/speculor/internal/models"
)

// QuoteCache caches quotes per symbol with a TTL. A TTL of zero disables
// caching entirely so every lookup goes live.
type QuoteCache struct {
	entries map[string]cacheEntry
	mu      sync.RWMutex
	ttl     time.Duration
}

type cacheEntry struct {
	quote    *models.Quote
	storedAt time.Time
}

// NewQuoteCache creates a quote cache with the given TTL.
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached quote for symbol if it is still fresh.
func (c *QuoteCache) Get(symbol string) (*models.Quote, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if time.Since(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, symbol)
		c.mu.Unlock()
		return nil, false
	}
	return entry.quote, true
}

// Put stores a quote. A nil quote or disabled cache is a no-op.
func (c *QuoteCache) Put(symbol string, quote *models.Quote) {
	if c.ttl <= 0 || quote == nil {
		return
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: quote, storedAt: time.Now()}
	c.mu.Unlock()
}

// Clear drops all cached quotes.
func (c *QuoteCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached entries, fresh or not.
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
