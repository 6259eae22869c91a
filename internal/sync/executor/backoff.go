package executor

import (
	"math/rand"
	"time"
)

// Backoff configures the wait between retries of one operation:
// min(Cap, Base*2^attempt) plus a uniform random jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

// DefaultBackoff returns the standard retry schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   400 * time.Millisecond,
		Cap:    5 * time.Second,
		Jitter: 200 * time.Millisecond,
	}
}

// Delay returns the wait before retry number attempt+1, where attempt counts
// from 0 for the first failure. randInt63n may be nil to use math/rand.
func (b Backoff) Delay(attempt int, randInt63n func(int64) int64) time.Duration {
	if randInt63n == nil {
		randInt63n = rand.Int63n
	}

	delay := b.Cap
	// Shifting past 30 bits overflows long before any sane cap is reached.
	if attempt < 30 {
		if d := b.Base << uint(attempt); d < b.Cap {
			delay = d
		}
	}

	if b.Jitter > 0 {
		delay += time.Duration(randInt63n(int64(b.Jitter)))
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
