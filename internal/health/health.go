// Package health tracks provider outcomes and process lifecycle for the
// /health endpoint. One Tracker instance is shared by the accessor (provider
// outcomes), the rate-limit middleware (denials) and the HTTP handler
// (status computation).
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker maintains sliding windows of provider outcomes and rate-limit
// denials plus the shutting-down flag. Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
	shuttingDown atomic.Bool
	now          func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordProviderSuccess records a successful provider call.
func (t *Tracker) RecordProviderSuccess() {
	t.record(&t.successTimes)
}

// RecordProviderError records a failed provider call.
func (t *Tracker) RecordProviderError() {
	t.record(&t.errorTimes)
}

// RecordDenial records an inbound rate-limit denial (429).
func (t *Tracker) RecordDenial() {
	t.record(&t.deniedTimes)
}

// ProviderErrorRate returns (errors, total) provider calls within the
// window; total excludes denials.
func (t *Tracker) ProviderErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	e := countSince(t.errorTimes, cutoff)
	s := countSince(t.successTimes, cutoff)
	return e, e + s
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// SetShuttingDown flips the drain flag. Health reports 503 shutting-down
// while set.
func (t *Tracker) SetShuttingDown(v bool) {
	t.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (t *Tracker) IsShuttingDown() bool {
	return t.shuttingDown.Load()
}

// Reset clears all recorded outcomes. For tests only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
	t.shuttingDown.Store(false)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than five minutes, the longest window
// any caller asks for. Must hold t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
