package agent

import (
	"math"
	"math/rand"
	"time"
)

// Backoff describes the reconnect schedule. The zero Multiplier is treated
// as 1, which gives a fixed interval.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter removes up to this fraction of each delay at random.
	Jitter float64
	// MaxAttempts bounds consecutive reconnect attempts. Zero retries forever.
	MaxAttempts int
}

// DefaultBackoff retries every two seconds, forever.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    2 * time.Second,
		Max:        2 * time.Second,
		Multiplier: 1,
	}
}

// Next returns the delay before reconnect attempt n, counting from 1.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(b.Initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		jitter := math.Min(b.Jitter, 1)
		delay -= delay * jitter * rand.Float64()
	}

	return time.Duration(delay)
}

func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt > b.MaxAttempts
}
