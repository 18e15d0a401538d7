package transport

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Reconnector tracks reconnect attempts for a polling loop. It never
// sleeps; the loop compares Due against its own clock.
type Reconnector struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
	due     time.Time
}

func NewReconnector(cfg BackoffConfig, rng *rand.Rand) *Reconnector {
	return &Reconnector{cfg: cfg, rng: rng}
}

// Schedule records a failed attempt at now and returns when the next
// attempt is due.
func (r *Reconnector) Schedule(now time.Time) time.Time {
	r.attempt++
	r.due = now.Add(NextBackoffDelay(r.cfg, r.attempt, r.rng))
	return r.due
}

// Due reports whether a scheduled attempt may run at now.
func (r *Reconnector) Due(now time.Time) bool {
	return !now.Before(r.due)
}

func (r *Reconnector) Attempts() int { return r.attempt }

// Reset clears the attempt count after a session reaches Active.
func (r *Reconnector) Reset() {
	r.attempt = 0
	r.due = time.Time{}
}
