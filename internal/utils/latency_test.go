package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe("enhanced", d)
	}

	if tracker.Count("enhanced") != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count("enhanced"))
	}

	p95 := tracker.Percentile("enhanced", 95)
	if p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
	if tracker.Percentile("enhanced", 0) != 10*time.Millisecond {
		t.Fatalf("expected p0 to be the minimum sample")
	}
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe("basic", time.Duration(i)*time.Millisecond)
	}
	if tracker.Count("basic") != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count("basic"))
	}
	if got := tracker.Percentile("basic", 100); got != 9*time.Millisecond {
		t.Fatalf("expected newest sample retained, got %v", got)
	}
	if got := tracker.Percentile("basic", 0); got != 7*time.Millisecond {
		t.Fatalf("expected oldest samples evicted, got %v", got)
	}
}

func TestLatencyTrackerSeparatesOperations(t *testing.T) {
	tracker := NewLatencyTracker(4)
	tracker.Observe("a", time.Second)
	if tracker.Count("b") != 0 || tracker.Percentile("b", 50) != 0 {
		t.Fatalf("expected unknown operation to be empty")
	}
}
