// Package backoff computes reconnection delays.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds the reconnection parameters.
type Config struct {
	// BaseDelay is the delay of the first attempt before jitter
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth before jitter
	MaxDelay time.Duration

	// JitterFactor is the relative amplitude of the random perturbation
	JitterFactor float64

	// MaxAttempts is the number of reconnection attempts allowed, 0 never retries
	MaxAttempts int
}

// DefaultConfig returns the default reconnection parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
		MaxAttempts:  10,
	}
}

// CalculateDelay returns the delay before the given attempt using rand.Float64 as the
// source of jitter.
func CalculateDelay(attempt int, cfg Config) time.Duration {
	return CalculateDelayWith(attempt, cfg, rand.Float64)
}

// CalculateDelayWith is CalculateDelay with an explicit random source returning values
// in [0,1). Attempts lower than one yield a delay below BaseDelay.
func CalculateDelayWith(attempt int, cfg Config, random func() float64) time.Duration {
	base := float64(cfg.BaseDelay.Milliseconds())
	exponential := math.Min(base*math.Pow(2, float64(attempt-1)), float64(cfg.MaxDelay.Milliseconds()))
	jitter := exponential * cfg.JitterFactor * (2*random() - 1)

	return time.Duration(math.Floor(exponential+jitter)) * time.Millisecond
}

// ShouldReconnect reports whether another attempt is allowed after attempts failed ones.
func ShouldReconnect(attempts int, cfg Config) bool {
	return attempts < cfg.MaxAttempts
}
