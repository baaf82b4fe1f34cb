package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLoggingMiddlewareRecordsMetrics(t *testing.T) {
	tracker := NewMetricsTracker()
	logger := NewLogger()

	handler := RequestLoggingMiddleware(logger, tracker, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}

	snapshot := tracker.Snapshot()
	if snapshot.PathCounts["/api/auth/login"] != 1 {
		t.Fatalf("path counts = %v", snapshot.PathCounts)
	}
	if snapshot.StatusCounts["429"] != 1 {
		t.Fatalf("status counts = %v", snapshot.StatusCounts)
	}
	if snapshot.ErrorCounts["TOO_MANY_REQUESTS"] != 1 {
		t.Fatalf("error counts = %v", snapshot.ErrorCounts)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	logger := NewLogger()

	handler := RecoverMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}
