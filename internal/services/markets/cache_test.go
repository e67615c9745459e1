package markets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/speculor/internal/models"
)

func TestQuoteCacheTTL(t *testing.T) {
	cache := NewQuoteCache(50 * time.Millisecond)

	quote := &models.Quote{Symbol: "^spx", Price: 5500, Retrieved: time.Now()}
	cache.Put("^spx", quote)

	got, ok := cache.Get("^spx")
	require.True(t, ok)
	assert.Equal(t, 5500.0, got.Price)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get("^spx")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestQuoteCacheDisabled(t *testing.T) {
	cache := NewQuoteCache(0)

	cache.Put("^spx", &models.Quote{Symbol: "^spx", Price: 5500})
	_, ok := cache.Get("^spx")
	assert.False(t, ok, "TTL=0 disables caching")
	assert.Equal(t, 0, cache.Len())
}

func TestQuoteCacheClear(t *testing.T) {
	cache := NewQuoteCache(time.Minute)
	cache.Put("a", &models.Quote{Symbol: "a", Price: 1})
	cache.Put("b", &models.Quote{Symbol: "b", Price: 2})
	require.Equal(t, 2, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestQuoteCacheIgnoresNil(t *testing.T) {
	cache := NewQuoteCache(time.Minute)
	cache.Put("x", nil)
	assert.Equal(t, 0, cache.Len())
}
