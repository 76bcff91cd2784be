package conn

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes exponential reconnection delays with random jitter,
// capped at a maximum. The attempt counter only resets on a successful
// authenticated connection, never on a mere transport open.
type Backoff struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	factor  float64
	attempt int
}

// NewBackoff creates a backoff schedule. Zero values fall back to
// 1s base, factor 2, 30s cap.
func NewBackoff(base, max time.Duration, factor float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	if factor <= 1 {
		factor = 2
	}
	return &Backoff{base: base, max: max, factor: factor}
}

// Next returns the delay before the next attempt and advances the
// counter. Consecutive delays are non-decreasing up to the cap.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	jitter := time.Duration(rand.Float64() * float64(b.base) * 0.5)
	delay := time.Duration(math.Min(
		float64(b.base)*math.Pow(b.factor, float64(b.attempt))+float64(jitter),
		float64(b.max),
	))
	b.attempt++
	return delay
}

// Attempt returns how many attempts have been scheduled since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset zeroes the attempt counter.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
