package markets

import (
	"context"
	"sync"
	"time"
)

// PacingLimiter spaces requests per provider class so a burst of
// instrument lookups does not hammer a single upstream API.
type PacingLimiter struct {
	limiters     map[string]*classLimiter
	mu           sync.RWMutex
	defaultDelay time.Duration
}

// classLimiter tracks pacing for a single provider class
type classLimiter struct {
	lastRequest time.Time
	mu          sync.Mutex
	delay       time.Duration
}

// NewPacingLimiter creates a pacing limiter with the specified default delay
func NewPacingLimiter(defaultDelay time.Duration) *PacingLimiter {
	return &PacingLimiter{
		limiters:     make(map[string]*classLimiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until the pacing delay for the provider class has elapsed
// since the previous request, or the context is cancelled.
func (pl *PacingLimiter) Wait(ctx context.Context, class string) error {
	if class == "" {
		return nil
	}

	pl.mu.Lock()
	limiter, exists := pl.limiters[class]
	if !exists {
		limiter = &classLimiter{
			delay: pl.defaultDelay,
		}
		pl.limiters[class] = limiter
	}
	pl.mu.Unlock()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	nextAllowed := limiter.lastRequest.Add(limiter.delay)

	if now.Before(nextAllowed) {
		waitDuration := nextAllowed.Sub(now)

		timer := time.NewTimer(waitDuration)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	limiter.lastRequest = time.Now()
	return nil
}

// SetClassDelay sets a custom delay for a specific provider class
func (pl *PacingLimiter) SetClassDelay(class string, delay time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	limiter, exists := pl.limiters[class]
	if !exists {
		pl.limiters[class] = &classLimiter{delay: delay}
	} else {
		limiter.mu.Lock()
		limiter.delay = delay
		limiter.mu.Unlock()
	}
}

// GetClassDelay returns the current delay for a provider class
func (pl *PacingLimiter) GetClassDelay(class string) time.Duration {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	limiter, exists := pl.limiters[class]
	if !exists {
		return pl.defaultDelay
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return limiter.delay
}
