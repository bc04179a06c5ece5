// Package dedup suppresses repeated exposure events within a rolling window.
//
// Exposure logging is high cardinality: every flag check for every user can
// produce an event. The filter maps a composite exposure key to the last time
// it was logged and drops repeats inside the window. Entries are never
// proactively evicted; the map is bounded by the key cardinality of the
// running session and cleared wholesale on Reset.
package dedup

import (
	"sync"
	"time"
)

// DefaultWindow is how long a key stays suppressed after being logged.
const DefaultWindow = 10 * time.Minute

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Filter tracks the last-logged time per exposure key.
type Filter struct {
	mu       sync.Mutex
	windowMs int64
	seen     map[string]int64
}

// New creates a filter with the given window. Zero or negative means
// DefaultWindow.
func New(window time.Duration) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{
		windowMs: window.Milliseconds(),
		seen:     make(map[string]int64),
	}
}

// ShouldLog reports whether key should be logged now. The first sighting of a
// key returns true and records the time; repeats inside the window return
// false; a sighting after the window returns true and refreshes the recorded
// time.
func (f *Filter) ShouldLog(key string) bool {
	now := NowMs()

	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.seen[key]; ok && now-last < f.windowMs {
		return false
	}
	f.seen[key] = now
	return true
}

// Reset clears all recorded keys. Used when the evaluated identity changes,
// since exposure semantics are scoped to an identity.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]int64)
}

// Count returns the number of tracked keys.
func (f *Filter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
