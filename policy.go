package transfer

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how many times a request is attempted and how long to
// wait between attempts. Attempt numbering starts at 1, so MaxAttempts = N
// means one initial try plus N-1 retries.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy matches the backoff the engine ships with: 5 attempts,
// exponential doubling from 500ms capped at 30s, with ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      500 * time.Millisecond,
		Multiplier:     2.0,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry policy: MaxAttempts must be at least 1")
	}
	if p.BaseDelay <= 0 {
		return errors.New("retry policy: BaseDelay must be positive")
	}
	if p.Multiplier < 1 {
		return errors.New("retry policy: Multiplier must be at least 1")
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return errors.New("retry policy: JitterFraction must be in [0, 1)")
	}
	return nil
}

// NextDelay computes the backoff before retrying after the given attempt
// (1-based). Jitter spreads concurrent retries so many chunk workers hitting
// the same failure don't hammer the server in lockstep.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if maxd := float64(p.MaxDelay); p.MaxDelay > 0 && delay > maxd {
		delay = maxd
	}
	if p.JitterFraction > 0 {
		// Uniform in (1-jitter, 1+jitter).
		delay *= 1 + p.JitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(delay)
}
