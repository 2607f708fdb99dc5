package policy

import "time"

// Rate limit defaults.
const (
	DefaultRateWindow = time.Second
	DefaultRateLimit  = 50
)

// RateLimiter is a sliding-window keystroke limiter.
// It is not safe for concurrent use; the engine serialises access.
type RateLimiter struct {
	window  time.Duration
	limit   int
	entries []time.Time
}

// NewRateLimiter returns a limiter allowing limit events per window.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &RateLimiter{window: window, limit: limit}
}

// Allow prunes stale entries and records now if the window has room.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.prune(now)
	if len(r.entries) >= r.limit {
		return false
	}
	r.entries = append(r.entries, now)
	return true
}

// Count returns the number of entries inside the window at now.
func (r *RateLimiter) Count(now time.Time) int {
	r.prune(now)
	return len(r.entries)
}

// Timestamps returns a copy of the recorded entries.
func (r *RateLimiter) Timestamps() []time.Time {
	out := make([]time.Time, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset clears all entries.
func (r *RateLimiter) Reset() {
	r.entries = nil
}

func (r *RateLimiter) prune(now time.Time) {
	keep := 0
	for _, ts := range r.entries {
		if now.Sub(ts) < r.window {
			r.entries[keep] = ts
			keep++
		}
	}
	r.entries = r.entries[:keep]
}
