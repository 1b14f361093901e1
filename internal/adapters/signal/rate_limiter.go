package signal

import (
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

// RateLimiter caps how many messages a user may send per window. It
// counts against fixed windows rather than keeping per-send timestamps,
// so memory per user stays constant no matter how hard they hammer.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[domain.UserID]*rateBucket
	limit    int
	interval time.Duration
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[domain.UserID]*rateBucket),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b := rl.buckets[uid]
	if b == nil || now.Sub(b.windowStart) >= rl.interval {
		rl.buckets[uid] = &rateBucket{count: 1, windowStart: now}
		return true
	}
	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

// Forget drops a user's bucket so disconnected users do not accumulate.
func (rl *RateLimiter) Forget(uid domain.UserID) {
	rl.mu.Lock()
	delete(rl.buckets, uid)
	rl.mu.Unlock()
}
