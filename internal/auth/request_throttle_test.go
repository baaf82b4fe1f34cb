package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestThrottleHardLimit(t *testing.T) {
	// A limit this small turns hard enforcement on implicitly.
	throttle := NewRequestThrottle(3, time.Minute, 5, 15*time.Second, false)

	for i := 0; i < 3; i++ {
		if decision := throttle.Consume("sid-1", Fingerprint("POST", "/api/x", "body", string(rune('a'+i)))); !decision.Allowed {
			t.Fatalf("request %d denied under the limit", i)
		}
	}

	decision := throttle.Consume("sid-1", Fingerprint("POST", "/api/x", "another"))
	if decision.Allowed {
		t.Fatal("fourth request should exceed the hard limit")
	}
	if decision.ResetSeconds < 1 {
		t.Fatalf("expected a positive reset, got %d", decision.ResetSeconds)
	}

	// Another session has its own window.
	if decision := throttle.Consume("sid-2", Fingerprint("POST", "/api/x", "body")); !decision.Allowed {
		t.Fatal("separate session denied")
	}
}

func TestRequestThrottleSoftByDefault(t *testing.T) {
	// Limit above the cutoff and no explicit enforcement: the count window
	// only decorates headers, it never blocks.
	throttle := NewRequestThrottle(20, time.Minute, 3, 15*time.Second, false)

	for i := 0; i < 40; i++ {
		fingerprint := Fingerprint("POST", "/api/x", strings.Repeat("x", i+1))
		if decision := throttle.Consume("sid-1", fingerprint); !decision.Allowed {
			t.Fatalf("soft limit blocked request %d", i)
		}
	}
}

func TestRequestThrottleDuplicateWindowAlwaysEnforced(t *testing.T) {
	throttle := NewRequestThrottle(500, time.Minute, 3, 15*time.Second, false)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return base }

	same := Fingerprint("POST", "/api/x", `{"resume":"v1"}`)

	for i := 0; i < 3; i++ {
		if decision := throttle.Consume("sid-1", same); !decision.Allowed {
			t.Fatalf("duplicate %d denied under the limit", i)
		}
	}

	decision := throttle.Consume("sid-1", same)
	if decision.Allowed {
		t.Fatal("fourth identical submission should be rejected")
	}
	if !strings.Contains(decision.Message, "repeated submissions") {
		t.Fatalf("unexpected message %q", decision.Message)
	}

	// A changed payload passes immediately.
	if decision := throttle.Consume("sid-1", Fingerprint("POST", "/api/x", `{"resume":"v2"}`)); !decision.Allowed {
		t.Fatal("different payload denied")
	}

	// The duplicate window slides.
	throttle.now = func() time.Time { return base.Add(16 * time.Second) }
	if decision := throttle.Consume("sid-1", same); !decision.Allowed {
		t.Fatal("duplicate after window expiry denied")
	}
}

func TestRequestThrottleMiddleware(t *testing.T) {
	throttle := NewRequestThrottle(2, time.Minute, 5, 15*time.Second, false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := throttle.Middleware(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/x", strings.NewReader(string(rune('a'+i))))
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
		if rec.Header().Get("x-ratelimit-limit") != "2" {
			t.Fatalf("request %d: missing limit header", i)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/x", strings.NewReader("c")))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRequestThrottleMiddlewareBodyCap(t *testing.T) {
	throttle := NewRequestThrottle(100, time.Minute, 5, 15*time.Second, false).WithMaxBodyBytes(16)

	handler := throttle.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/x", strings.NewReader(strings.Repeat("x", 32))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("POST", "/api/x", "body")
	b := Fingerprint("POST", "/api/x", "body")
	c := Fingerprint("POST", "/api/x", "other")

	if a != b {
		t.Fatal("identical inputs produced different fingerprints")
	}
	if a == c {
		t.Fatal("different inputs collided")
	}
	if len(a) != 24 {
		t.Fatalf("expected 24-char fingerprint, got %d", len(a))
	}
}
