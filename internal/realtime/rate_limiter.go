package realtime

import "time"

// RateLimiter is a per-connection sliding-window limiter.
// It is only ever touched from the connection read loop, so it needs no lock.
type RateLimiter struct {
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether a request at time "now" should be permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	cut := now.Add(-r.window)

	keep := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			keep = append(keep, t)
		}
	}
	r.events = keep

	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}
