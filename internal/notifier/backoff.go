package notifier

import (
	"time"
)

// RetryPolicy defines the per-job retry schedule: exponential backoff
// from Initial, multiplied per attempt, capped at Cap, for at most
// MaxAttempts attempts.
type RetryPolicy struct {
	Initial     time.Duration
	Cap         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultRetryPolicy returns the default schedule:
// 30s, 60s, 120s, 240s, 480s: five attempts, capped at 10 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:     30 * time.Second,
		Cap:         10 * time.Minute,
		Multiplier:  2.0,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given retry. attempt counts failed
// attempts so far, so the delay after the first failure is Delay(1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.Cap) {
			return p.Cap
		}
	}
	if delay > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(delay)
}

// Exhausted reports whether the attempt budget is spent.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
