package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// softHardLimitCutoff: the per-session count window is deliberately soft by
// default so legitimate polling and retries are not punished. It is only
// enforced when the operator configured a small limit or explicitly enabled
// hard enforcement. The duplicate window is always enforced.
const softHardLimitCutoff = 10

type duplicateKey struct {
	sessionID   string
	fingerprint string
}

// RequestThrottle guards sensitive endpoints against request bursts and
// duplicate payload resubmission per client session. State is
// process-lifetime; critical sections are bounded by stale-entry pruning.
type RequestThrottle struct {
	mu              sync.Mutex
	limit           int
	window          time.Duration
	duplicateLimit  int
	duplicateWindow time.Duration
	hardEnabled     bool
	maxBodyBytes    int64
	hits            map[string][]time.Time
	duplicates      map[duplicateKey][]time.Time
	now             func() time.Time
}

func NewRequestThrottle(limit int, window time.Duration, duplicateLimit int, duplicateWindow time.Duration, enforceHardLimit bool) *RequestThrottle {
	if limit < 1 {
		limit = 1
	}
	if window < time.Second {
		window = time.Second
	}
	if duplicateLimit < 2 {
		duplicateLimit = 2
	}
	if duplicateWindow < time.Second {
		duplicateWindow = time.Second
	}

	return &RequestThrottle{
		limit:           limit,
		window:          window,
		duplicateLimit:  duplicateLimit,
		duplicateWindow: duplicateWindow,
		hardEnabled:     limit <= softHardLimitCutoff || enforceHardLimit,
		hits:            make(map[string][]time.Time),
		duplicates:      make(map[duplicateKey][]time.Time),
		now:             time.Now,
	}
}

func (t *RequestThrottle) Limit() int { return t.limit }

// WithMaxBodyBytes caps the JSON body size the middleware accepts on
// throttled routes. Zero disables the cap.
func (t *RequestThrottle) WithMaxBodyBytes(maxBodyBytes int64) *RequestThrottle {
	t.maxBodyBytes = maxBodyBytes
	return t
}

// Consume checks both windows and, on success, records the hit into both.
// Prune, check, and append happen under one lock so concurrent callers
// cannot interleave between read and mutate.
func (t *RequestThrottle) Consume(sessionID, fingerprint string) Decision {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	queue := pruneWindow(t.hits[sessionID], now, t.window)

	if t.hardEnabled && len(queue) >= t.limit {
		resetSeconds := windowReset(queue[0], now, t.window)
		t.hits[sessionID] = queue
		return Decision{
			Allowed:      false,
			Remaining:    0,
			ResetSeconds: resetSeconds,
			Message:      fmt.Sprintf("Rate limit exceeded. Retry in %ds", resetSeconds),
		}
	}

	dupKey := duplicateKey{sessionID: sessionID, fingerprint: fingerprint}
	dupQueue := pruneWindow(t.duplicates[dupKey], now, t.duplicateWindow)

	if len(dupQueue) >= t.duplicateLimit {
		resetSeconds := windowReset(dupQueue[0], now, t.duplicateWindow)
		t.hits[sessionID] = queue
		t.duplicates[dupKey] = dupQueue
		remaining := t.limit - len(queue)
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:      false,
			Remaining:    remaining,
			ResetSeconds: resetSeconds,
			Message:      "Too many repeated submissions. Please adjust input and retry later.",
		}
	}

	queue = append(queue, now)
	dupQueue = append(dupQueue, now)
	t.hits[sessionID] = queue
	t.duplicates[dupKey] = dupQueue

	remaining := t.limit - len(queue)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:      true,
		Remaining:    remaining,
		ResetSeconds: int(t.window.Seconds()),
	}
}

func pruneWindow(queue []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := queue[:0]
	for _, hit := range queue {
		if now.Sub(hit) <= window {
			kept = append(kept, hit)
		}
	}

	return kept
}

func windowReset(oldest, now time.Time, window time.Duration) int {
	resetSeconds := int(window.Seconds() - now.Sub(oldest).Seconds())
	if resetSeconds < 1 {
		resetSeconds = 1
	}
	return resetSeconds
}

// Fingerprint derives a stable short hash over the semantically meaningful
// request fields, used to detect resubmission of the same logical request.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])[:24]
}

// Middleware applies the throttle to a protected route. The fingerprint
// covers method, path, and body; the session key comes from the identity the
// AccessGate placed in the request context.
func (t *RequestThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := "anonymous"
		if identity, ok := IdentityFromContext(r.Context()); ok {
			sessionID = identity.ClientSessionID
		}

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			if err != nil {
				WriteError(w, http.StatusBadRequest, CodeBadRequest, "failed to read request body", RequestIDFromContext(r.Context()))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		if t.maxBodyBytes > 0 && int64(len(body)) > t.maxBodyBytes {
			WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("Payload too large, max %d bytes", t.maxBodyBytes), RequestIDFromContext(r.Context()))
			return
		}

		decision := t.Consume(sessionID, Fingerprint(r.Method, r.URL.Path, string(body)))

		header := w.Header()
		header.Set("x-ratelimit-limit", strconv.Itoa(t.limit))
		header.Set("x-ratelimit-remaining", strconv.Itoa(decision.Remaining))
		header.Set("x-ratelimit-reset-sec", strconv.Itoa(decision.ResetSeconds))

		if !decision.Allowed {
			header.Set("Retry-After", strconv.Itoa(decision.ResetSeconds))
			message := decision.Message
			if message == "" {
				message = "Rate limit exceeded"
			}
			WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, message, RequestIDFromContext(r.Context()))
			return
		}

		next.ServeHTTP(w, r)
	})
}
