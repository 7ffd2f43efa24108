package monitor

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes capped-exponential retry delays with jitter.
type Backoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Jitter          float64 // ±jitter fraction (e.g., 0.2 = ±20%)
}

// DefaultBackoff returns sensible defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Jitter:          0.2,
	}
}

// Delay returns the delay before retry number attempt (zero-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.InitialInterval) * math.Pow(2, float64(attempt))
	if d > float64(b.MaxInterval) {
		d = float64(b.MaxInterval)
	}
	if b.Jitter > 0 {
		j := d * b.Jitter
		d = d - j + rand.Float64()*2*j
	}
	return time.Duration(d)
}
