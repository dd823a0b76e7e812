package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowRateLimiter(t *testing.T) {
	t.Run("allows up to the limit then blocks", func(t *testing.T) {
		rl := NewFixedWindowLimiter(3, time.Minute)

		for i := 0; i < 3; i++ {
			ok, _ := rl.Allow("10.0.0.1")
			assert.True(t, ok, "request %d should pass", i+1)
		}

		ok, retry := rl.Allow("10.0.0.1")
		assert.False(t, ok)
		assert.Equal(t, time.Minute, retry)
	})

	t.Run("clients are counted independently", func(t *testing.T) {
		rl := NewFixedWindowLimiter(1, time.Minute)

		ok, _ := rl.Allow("10.0.0.1")
		assert.True(t, ok)

		ok, _ = rl.Allow("10.0.0.2")
		assert.True(t, ok)

		ok, _ = rl.Allow("10.0.0.1")
		assert.False(t, ok)
	})

	t.Run("window reset readmits the client", func(t *testing.T) {
		rl := NewFixedWindowLimiter(1, 20*time.Millisecond)

		ok, _ := rl.Allow("10.0.0.1")
		assert.True(t, ok)
		ok, _ = rl.Allow("10.0.0.1")
		assert.False(t, ok)

		time.Sleep(50 * time.Millisecond)

		ok, _ = rl.Allow("10.0.0.1")
		assert.True(t, ok)
	})
}
