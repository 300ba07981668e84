package browser

import (
	"math"
	"time"
)

// BackoffConfig defines the relaunch delay schedule.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultBackoff returns the default relaunch schedule.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}
}

// NextDelay returns the delay before relaunch attempt N (1-based).
func (cfg BackoffConfig) NextDelay(attempt int) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return max(cfg.InitialDelay, 0)
	}

	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	return time.Duration(delay)
}
