// Package health tracks fetch outcomes per upstream data source so the
// health endpoint and the dashboard's degraded banner can tell whether the
// weather API or the MTA feeds are currently failing.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Data source names used across the service and handler layers.
const (
	SourceWeather = "weather"
	SourceTransit = "transit"
)

var (
	shuttingDown atomic.Bool

	mu       sync.Mutex
	trackers = map[string]*tracker{}
)

// tracker maintains sliding windows of outcome timestamps for one source.
type tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
}

func get(source string) *tracker {
	mu.Lock()
	defer mu.Unlock()
	t, ok := trackers[source]
	if !ok {
		t = &tracker{}
		trackers[source] = t
	}
	return t
}

// RecordSuccess records a successful fetch outcome for the source.
func RecordSuccess(source string) {
	t := get(source)
	t.mu.Lock()
	now := time.Now()
	t.successTimes = append(t.successTimes, now)
	t.pruneLocked(now)
	t.mu.Unlock()
}

// RecordError records a failed fetch outcome (upstream error, timeout,
// decode failure) for the source.
func RecordError(source string) {
	t := get(source)
	t.mu.Lock()
	now := time.Now()
	t.errorTimes = append(t.errorTimes, now)
	t.pruneLocked(now)
	t.mu.Unlock()
}

// ErrorRate returns (errorCount, totalCount) for the source within the window.
func ErrorRate(source string, window time.Duration) (errors, total int) {
	t := get(source)
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errors = countSince(t.errorTimes, cutoff)
	total = errors + countSince(t.successTimes, cutoff)
	return errors, total
}

// Degraded reports whether the source's error percentage within the window
// meets or exceeds thresholdPct. A source with no recorded outcomes is not
// degraded.
func Degraded(source string, window time.Duration, thresholdPct int) bool {
	errors, total := ErrorRate(source, window)
	if total == 0 {
		return false
	}
	return errors*100 >= total*thresholdPct
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	trackers = map[string]*tracker{}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// The health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// maxWindow bounds how long outcomes are retained. Callers never query
// beyond it.
const maxWindow = 15 * time.Minute

func (t *tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxWindow)
	t.successTimes = pruneBefore(t.successTimes, cutoff)
	t.errorTimes = pruneBefore(t.errorTimes, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
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
