package markets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacingLimiterEnforcesInterval(t *testing.T) {
	limiter := NewPacingLimiter(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "pricing"))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "pricing"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond, "second call should wait out the pacing delay")
}

func TestPacingLimiterClassesAreIndependent(t *testing.T) {
	limiter := NewPacingLimiter(200 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "pricing"))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "sentiment"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond, "a different class should not wait")
}

func TestPacingLimiterContextCancellation(t *testing.T) {
	limiter := NewPacingLimiter(5 * time.Second)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "pricing"))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(cancelCtx, "pricing")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacingLimiterCustomClassDelay(t *testing.T) {
	limiter := NewPacingLimiter(time.Second)
	limiter.SetClassDelay("sentiment", 10*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, limiter.GetClassDelay("sentiment"))
	assert.Equal(t, time.Second, limiter.GetClassDelay("pricing"))
}
