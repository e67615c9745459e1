package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuoteAvailability(t *testing.T) {
	good := &Quote{Symbol: "XAUUSD", Price: 2417.30, Source: "pricing", Retrieved: time.Now()}
	assert.True(t, good.Available())
	assert.True(t, Ok(good).Available())

	zero := &Quote{Symbol: "XAGUSD", Source: "pricing"}
	assert.False(t, zero.Available())

	negative := &Quote{Symbol: "^VIX", Price: -1.2, Source: "pricing"}
	assert.False(t, negative.Available())

	var nilQuote *Quote
	assert.False(t, nilQuote.Available())
}

func TestUnavailableMarker(t *testing.T) {
	r := Unavailable("provider timeout")
	assert.False(t, r.Available())
	assert.Equal(t, "provider timeout", r.Error)

	r = Unavailable("")
	assert.Equal(t, "Data not available", r.Error)
}
