// Package traffic keeps sliding windows of grid-source and API outcomes.
// The health endpoint reads it to decide whether the service is degraded.
package traffic

import (
	"sync"
	"time"
)

const defaultRetention = 5 * time.Minute

// Tracker records outcome timestamps and answers windowed counts.
// The zero value is ready to use with a five minute retention.
type Tracker struct {
	mu           sync.Mutex
	retention    time.Duration
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// New returns a Tracker that keeps outcomes for retention. Zero means five minutes.
func New(retention time.Duration) *Tracker {
	return &Tracker{retention: retention}
}

// RecordSuccess records a grid fetch that returned a document.
func (t *Tracker) RecordSuccess() {
	if t == nil {
		return
	}
	t.record(&t.successTimes)
}

// RecordError records a grid fetch that failed for any reason other than absence.
func (t *Tracker) RecordError() {
	if t == nil {
		return
	}
	t.record(&t.errorTimes)
}

// RecordDenied records an API request rejected by the rate limiter.
func (t *Tracker) RecordDenied() {
	if t == nil {
		return
	}
	t.record(&t.deniedTimes)
}

// record appends now to slice. Callers have checked t for nil.
func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns (errors, total) within window. Denials are not counted.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	errCount := countSince(t.errorTimes, cutoff)
	return errCount, errCount + countSince(t.successTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.clock().Add(-window))
}

// Degraded reports whether the error percentage over window reached thresholdPct
// with at least minSamples outcomes recorded.
func (t *Tracker) Degraded(window time.Duration, thresholdPct float64, minSamples int) bool {
	errs, total := t.ErrorRate(window)
	if total == 0 || total < minSamples {
		return false
	}
	return float64(errs)*100/float64(total) >= thresholdPct
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
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

// pruneLocked drops timestamps older than the retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	retention := t.retention
	if retention <= 0 {
		retention = defaultRetention
	}
	cutoff := now.Add(-retention)
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
