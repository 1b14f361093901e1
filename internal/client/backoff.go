package client

import (
	"errors"
	"math/rand"
	"time"
)

// ErrMaxReconnectAttempts is the terminal reconnect failure: cached
// room/message state is cleared and the UI shows "disconnected".
var ErrMaxReconnectAttempts = errors.New("max reconnect attempts exceeded")

// Backoff is a bounded exponential backoff with jitter. attempt is
// 1-based; Next reports false once the attempt budget is spent.
// Retrying forever on a short fixed delay is deliberately not supported.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	// Jitter is the fraction of the delay randomized away, in [0,1).
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        500 * time.Millisecond,
		Max:         30 * time.Second,
		MaxAttempts: 8,
		Jitter:      0.3,
	}
}

func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt > b.MaxAttempts {
		return 0, false
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) - spread*rand.Float64())
	}
	return d, true
}
