package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429 status", errors.New("Error 429, too many requests"), true},
		{"resource exhausted", errors.New("Status: RESOURCE_EXHAUSTED"), true},
		{"quota", errors.New("quota exceeded for model"), true},
		{"anthropic rate limit", errors.New("rate_limit_error: Number of requests exceeded"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	err = errors.New("retryDelay: 12s")
	assert.Equal(t, 12*time.Second, ExtractRetryDelay(err))

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no hint here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}
