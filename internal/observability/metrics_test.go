package observability

import "testing"

func TestMetricsTrackerCounts(t *testing.T) {
	tracker := NewMetricsTracker()

	tracker.Record("/api/auth/login", 200, 12, "")
	tracker.Record("/api/auth/login", 401, 8, "AUTH_INVALID_CREDENTIALS")
	tracker.Record("/api/auth/me", 200, 3, "")

	snapshot := tracker.Snapshot()

	if snapshot.RequestTotal != 3 {
		t.Fatalf("RequestTotal = %d", snapshot.RequestTotal)
	}
	if snapshot.PathCounts["/api/auth/login"] != 2 {
		t.Fatalf("login path count = %d", snapshot.PathCounts["/api/auth/login"])
	}
	if snapshot.StatusCounts["200"] != 2 || snapshot.StatusCounts["401"] != 1 {
		t.Fatalf("status counts = %v", snapshot.StatusCounts)
	}
	if snapshot.ErrorCounts["AUTH_INVALID_CREDENTIALS"] != 1 {
		t.Fatalf("error counts = %v", snapshot.ErrorCounts)
	}
}

func TestMetricsTrackerPercentiles(t *testing.T) {
	tracker := NewMetricsTracker()

	for ms := int64(1); ms <= 100; ms++ {
		tracker.Record("/api/x", 200, ms, "")
	}

	summary := tracker.Snapshot().Latency["/api/x"]
	if summary.Count != 100 {
		t.Fatalf("Count = %d", summary.Count)
	}
	if summary.P50MS < 49 || summary.P50MS > 51 {
		t.Fatalf("P50MS = %d", summary.P50MS)
	}
	if summary.P95MS < 94 || summary.P95MS > 96 {
		t.Fatalf("P95MS = %d", summary.P95MS)
	}
}

func TestMetricsTrackerBoundedWindow(t *testing.T) {
	tracker := NewMetricsTracker()

	for i := 0; i < latencyWindowSize+250; i++ {
		tracker.Record("/api/x", 200, int64(i), "")
	}

	summary := tracker.Snapshot().Latency["/api/x"]
	if summary.Count != latencyWindowSize {
		t.Fatalf("expected window capped at %d, got %d", latencyWindowSize, summary.Count)
	}
	// Only the newest entries remain, so the median reflects them.
	if summary.P50MS < 250 {
		t.Fatalf("expected the window to slide, P50MS = %d", summary.P50MS)
	}
}

func TestMetricsTrackerClampsNegativeDuration(t *testing.T) {
	tracker := NewMetricsTracker()
	tracker.Record("/api/x", 200, -5, "")

	if summary := tracker.Snapshot().Latency["/api/x"]; summary.P50MS != 0 {
		t.Fatalf("expected clamped duration, got %d", summary.P50MS)
	}
}
