package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent durations per operation
// and computes percentiles over it.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples map[string]*ring
	maxSize int
}

type ring struct {
	values []time.Duration
	next   int
	full   bool
}

// NewLatencyTracker creates a tracker storing up to maxSize samples per operation.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize, samples: make(map[string]*ring)}
}

// Observe records a new duration for op, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(op string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.samples[op]
	if !ok {
		r = &ring{values: make([]time.Duration, l.maxSize)}
		l.samples[op] = r
	}
	r.values[r.next] = d
	r.next = (r.next + 1) % l.maxSize
	if r.next == 0 {
		r.full = true
	}
}

// Percentile returns the percentile (0-100) duration for op. Returns zero if no samples.
func (l *LatencyTracker) Percentile(op string, p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.samples[op]
	if !ok {
		return 0
	}
	sorted := append([]time.Duration(nil), r.window()...)
	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples currently held for op.
func (l *LatencyTracker) Count(op string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.samples[op]
	if !ok {
		return 0
	}
	return len(r.window())
}

func (r *ring) window() []time.Duration {
	if r.full {
		return r.values
	}
	return r.values[:r.next]
}
