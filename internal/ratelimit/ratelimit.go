// Package ratelimit implements sliding-window admission control over
// outbound MCSR Ranked API requests, with a ledger that survives restarts.
package ratelimit

import (
	"encoding/json"
	"os"
	"time"
)

// Limiter tracks request timestamps inside a sliding window. It is not
// internally locked: callers issuing requests for the same username must
// serialize access themselves.
type Limiter struct {
	maxRequests int
	window      time.Duration
	requests    []time.Time

	now func() time.Time
}

func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// NewWithClock is for tests that need a simulated clock.
func NewWithClock(maxRequests int, window time.Duration, now func() time.Time) *Limiter {
	l := New(maxRequests, window)
	l.now = now
	return l
}

func (l *Limiter) evict() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	l.requests = l.requests[i:]
}

// CanProceed reports whether another request fits inside the window.
func (l *Limiter) CanProceed() bool {
	l.evict()
	return len(l.requests) < l.maxRequests
}

// Record appends the current instant to the ledger. Callers check
// CanProceed (and wait) before sending and Record around the send itself.
func (l *Limiter) Record() {
	l.requests = append(l.requests, l.now())
}

// WaitTime returns how long until the next request is admissible; zero when
// CanProceed is already true.
func (l *Limiter) WaitTime() time.Duration {
	if l.CanProceed() {
		return 0
	}
	windowStart := l.now().Add(-l.window)
	if len(l.requests) > 0 && l.requests[0].After(windowStart) {
		return l.requests[0].Sub(windowStart)
	}
	return 0
}

// Status is a point-in-time snapshot for display and logging.
type Status struct {
	RequestsMade      int           `json:"requests_made"`
	RequestsRemaining int           `json:"requests_remaining"`
	WindowSeconds     int           `json:"window_seconds"`
	CanRequest        bool          `json:"can_request"`
	WaitTime          time.Duration `json:"wait_time"`
}

func (l *Limiter) Snapshot() Status {
	l.evict()
	return Status{
		RequestsMade:      len(l.requests),
		RequestsRemaining: l.maxRequests - len(l.requests),
		WindowSeconds:     int(l.window / time.Second),
		CanRequest:        l.CanProceed(),
		WaitTime:          l.WaitTime(),
	}
}

// persistedState is the on-disk rate-limit ledger. Timestamps are epoch
// seconds so files written by older builds stay readable.
type persistedState struct {
	RequestTimestamps []float64 `json:"request_timestamps"`
	LastUpdated       float64   `json:"last_updated"`
}

// Load restores persisted timestamps that are still inside the window.
// Missing or corrupt state is ignored: the limiter starts from an empty
// ledger and the short window makes that safe.
func (l *Limiter) Load(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return
	}
	windowStart := l.now().Add(-l.window)
	for _, ts := range state.RequestTimestamps {
		at := time.Unix(0, int64(ts*float64(time.Second)))
		if at.After(windowStart) {
			l.requests = append(l.requests, at)
		}
	}
}

// Save prunes stale timestamps and writes the ledger. Failures are
// swallowed; rate limiting still works without persistence.
func (l *Limiter) Save(path string) {
	l.evict()
	state := persistedState{
		RequestTimestamps: make([]float64, 0, len(l.requests)),
		LastUpdated:       float64(l.now().UnixNano()) / float64(time.Second),
	}
	for _, at := range l.requests {
		state.RequestTimestamps = append(state.RequestTimestamps, float64(at.UnixNano())/float64(time.Second))
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, raw, 0o644)
}
