package gateway

import (
	"sync"
	"time"
)

// FrameRateLimiter implements sliding window rate limiting of inbound frames
// for one connection
type FrameRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	frames []time.Time
	now    func() time.Time
}

// NewFrameRateLimiter creates a limiter allowing framesPerMinute frames in
// any one-minute window. A non-positive limit disables limiting.
func NewFrameRateLimiter(framesPerMinute int) *FrameRateLimiter {
	return &FrameRateLimiter{
		limit:  framesPerMinute,
		window: time.Minute,
		frames: make([]time.Time, 0),
		now:    time.Now,
	}
}

// Allow records a frame and reports whether it is within the limit.
// Rejected frames do not count against the window.
func (r *FrameRateLimiter) Allow() bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	if len(r.frames) >= r.limit {
		return false
	}
	r.frames = append(r.frames, now)
	return true
}

// Count returns the number of frames in the current window
func (r *FrameRateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	return len(r.frames)
}

// prune drops frames older than the window
func (r *FrameRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	valid := r.frames[:0]
	for _, t := range r.frames {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.frames = valid
}
