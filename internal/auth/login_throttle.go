package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// LoginThrottle guards against repeated failed logins. Keys are
// "normalizedUsername|clientOrigin" so one hammered account does not lock
// out every caller behind a shared origin. State is process-lifetime and
// resets on restart; the limiter fails open up to its configured burst.
type LoginThrottle struct {
	mu           sync.Mutex
	failLimit    int
	window       time.Duration
	lockDuration time.Duration
	failures     map[string][]time.Time
	blockedUntil map[string]time.Time
	now          func() time.Time
}

func NewLoginThrottle(failLimit int, window, lockDuration time.Duration) *LoginThrottle {
	if failLimit < 2 {
		failLimit = 2
	}
	if window < 10*time.Second {
		window = 10 * time.Second
	}
	if lockDuration < 10*time.Second {
		lockDuration = 10 * time.Second
	}

	return &LoginThrottle{
		failLimit:    failLimit,
		window:       window,
		lockDuration: lockDuration,
		failures:     make(map[string][]time.Time),
		blockedUntil: make(map[string]time.Time),
		now:          time.Now,
	}
}

// LoginThrottleKey builds the limiter key from the username and a
// best-effort client origin, falling back to the client session id.
func LoginThrottleKey(username, clientOrigin, clientSessionID string) string {
	origin := strings.TrimSpace(clientOrigin)
	if origin == "" {
		origin = clientSessionID
	}

	return normalizeUsername(username) + "|" + origin
}

// prune drops failures outside the window. Caller must hold mu.
func (t *LoginThrottle) prune(key string, now time.Time) []time.Time {
	queue := t.failures[key]
	kept := queue[:0]
	for _, hit := range queue {
		if now.Sub(hit) <= t.window {
			kept = append(kept, hit)
		}
	}

	if len(kept) == 0 {
		delete(t.failures, key)
		return nil
	}

	t.failures[key] = kept
	return kept
}

// Check is read-only: it reports the lockout state and remaining attempt
// budget without recording anything.
func (t *LoginThrottle) Check(key string) Decision {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.blockedUntil[key]; ok {
		if until.After(now) {
			resetSeconds := int(until.Sub(now).Seconds())
			if resetSeconds < 1 {
				resetSeconds = 1
			}
			remaining := t.failLimit - len(t.prune(key, now))
			if remaining < 0 {
				remaining = 0
			}
			return Decision{
				Allowed:      false,
				Remaining:    remaining,
				ResetSeconds: resetSeconds,
				Message:      fmt.Sprintf("Too many failed login attempts. Retry in %ds", resetSeconds),
			}
		}
		delete(t.blockedUntil, key)
	}

	remaining := t.failLimit - len(t.prune(key, now))
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:      true,
		Remaining:    remaining,
		ResetSeconds: int(t.window.Seconds()),
	}
}

// RegisterFailure appends a failure and, once the window holds failLimit
// entries, arms the lockout.
func (t *LoginThrottle) RegisterFailure(key string) Decision {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	queue := append(t.prune(key, now), now)
	t.failures[key] = queue

	if len(queue) >= t.failLimit {
		t.blockedUntil[key] = now.Add(t.lockDuration)
		lockSeconds := int(t.lockDuration.Seconds())
		return Decision{
			Allowed:      false,
			Remaining:    0,
			ResetSeconds: lockSeconds,
			Message:      fmt.Sprintf("Too many failed login attempts. Retry in %ds", lockSeconds),
		}
	}

	return Decision{
		Allowed:      true,
		Remaining:    t.failLimit - len(queue),
		ResetSeconds: int(t.window.Seconds()),
	}
}

// RegisterSuccess clears the failure history and any lockout for the key.
func (t *LoginThrottle) RegisterSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, key)
	delete(t.blockedUntil, key)
}
