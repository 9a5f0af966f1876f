// Package server throttles inbound action frames per connection with a
// token bucket, protecting the dispatcher from a single chatty client.
package server

import (
	"sync"
	"time"
)

// tokenBucket allows bursts up to its capacity and refills continuously at
// capacity tokens per refill interval. A fresh bucket is unarmed and passes
// everything; arming it when the connection completes its handshake starts
// the metering, so the registration frame never draws a token.
type tokenBucket struct {
	mu       sync.Mutex
	armed    bool
	tokens   float64
	capacity float64
	perSec   float64
	last     time.Time
}

func newTokenBucket(capacity int, interval time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &tokenBucket{
		capacity: float64(capacity),
		perSec:   float64(capacity) / interval.Seconds(),
	}
}

// arm starts the meter with a full bucket. Called once, after registration.
func (tb *tokenBucket) arm() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.armed = true
	tb.tokens = tb.capacity
	tb.last = time.Now()
}

// allow consumes one token if available. Unarmed buckets always allow.
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.armed {
		return true
	}

	now := time.Now()
	tb.tokens += now.Sub(tb.last).Seconds() * tb.perSec
	tb.last = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
