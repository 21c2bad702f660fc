package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameRateLimiter_Allow(t *testing.T) {
	t.Run("should allow frames under limit", func(t *testing.T) {
		limiter := NewFrameRateLimiter(5)

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow())
		}
		assert.Equal(t, 5, limiter.Count())
	})

	t.Run("should reject when rate limit exceeded", func(t *testing.T) {
		limiter := NewFrameRateLimiter(3)

		for i := 0; i < 3; i++ {
			limiter.Allow()
		}

		assert.False(t, limiter.Allow())
		assert.Equal(t, 3, limiter.Count(), "rejected frames are not counted")
	})

	t.Run("should allow frames after window expires", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		limiter := NewFrameRateLimiter(2)
		limiter.now = func() time.Time { return now }

		assert.True(t, limiter.Allow())
		now = now.Add(30 * time.Second)
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())

		// the first frame leaves the window
		now = now.Add(31 * time.Second)
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())
		assert.Equal(t, 2, limiter.Count())
	})

	t.Run("should not limit when disabled", func(t *testing.T) {
		limiter := NewFrameRateLimiter(0)
		for i := 0; i < 1000; i++ {
			assert.True(t, limiter.Allow())
		}
	})
}
