// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the initial delay in milliseconds.
	InitialMs float64
	// MaxMs caps the delay in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
}

// Default returns the policy used for channel delivery retries:
// 200ms initial, 10s cap, doubling, 10% jitter.
func Default() Policy {
	return Policy{
		InitialMs: 200,
		MaxMs:     10_000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// Delay computes the backoff for an attempt (starting at 1):
// min(maxMs, initialMs * factor^(attempt-1) * (1 + jitter*random)).
func Delay(policy Policy, attempt int) time.Duration {
	return delayWithRand(policy, attempt, rand.Float64()) // jitter needs no cryptographic randomness
}

// delayWithRand is the deterministic core, exposed to tests via
// Delay-with-zero-jitter policies.
func delayWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	total := math.Min(policy.MaxMs, base+base*policy.Jitter*randomValue)
	return time.Duration(math.Round(total)) * time.Millisecond
}
