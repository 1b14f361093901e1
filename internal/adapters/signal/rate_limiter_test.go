package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice"), "attempt %d is within the limit", i+1)
	}
	assert.False(t, rl.Allow("alice"), "the limit is enforced within the window")
}

func TestRateLimiter_PerUserIsolation(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "one user's burst must not throttle another")
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(2, 30*time.Millisecond)

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.Allow("alice"), "a fresh window grants a fresh allowance")
}

func TestRateLimiter_ForgetDropsBucket(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	rl.Forget("alice")
	assert.True(t, rl.Allow("alice"), "a forgotten user starts over")
}
