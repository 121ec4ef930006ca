package listen

import "time"

// backoff computes restart delays after transient recognition failures.
// The delay starts at base and doubles per consecutive failure up to max.
// After maxRetries consecutive failures (0 = unlimited) it gives up.
type backoff struct {
	base       time.Duration
	max        time.Duration
	maxRetries int
	attempt    int
}

// next records a failure and returns the delay before the next restart.
// ok is false once the retry budget is exhausted.
func (b *backoff) next() (delay time.Duration, ok bool) {
	b.attempt++
	if b.maxRetries > 0 && b.attempt > b.maxRetries {
		return 0, false
	}
	delay = b.base
	for i := 1; i < b.attempt; i++ {
		delay *= 2
		if delay >= b.max {
			return b.max, true
		}
	}
	return min(delay, b.max), true
}

// reset clears the failure count after a healthy stream.
func (b *backoff) reset() { b.attempt = 0 }
