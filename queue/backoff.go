package queue

import "time"

// Backoff computes retry delays: Base doubled per attempt, capped at Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the next attempt, given the number of
// attempts already made (>= 1 after the first failure).
func (b Backoff) Delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	d := b.Base
	for i := 1; i < attemptCount; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// NextAttempt returns the absolute time of the next attempt.
func (b Backoff) NextAttempt(attemptCount int) time.Time {
	return time.Now().UTC().Add(b.Delay(attemptCount))
}
