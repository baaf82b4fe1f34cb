package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

type Handler struct {
	vault        *Vault
	ledger       *Ledger
	throttle     *LoginThrottle
	mode         string
	sessionTTL   time.Duration
	refreshGrace time.Duration
	maxBodyBytes int64
}

func NewHandler(vault *Vault, ledger *Ledger, throttle *LoginThrottle, mode string, sessionTTL, refreshGrace time.Duration, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}

	return &Handler{
		vault:        vault,
		ledger:       ledger,
		throttle:     throttle,
		mode:         mode,
		sessionTTL:   sessionTTL,
		refreshGrace: refreshGrace,
		maxBodyBytes: maxBodyBytes,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	RequestID string     `json:"requestId"`
	SessionID string     `json:"sessionId"`
	User      AccountRef `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

type refreshResponse struct {
	RequestID         string     `json:"requestId"`
	SessionID         string     `json:"sessionId"`
	User              AccountRef `json:"user"`
	Token             string     `json:"token"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	PreviousExpiresAt time.Time  `json:"previousExpiresAt"`
}

type logoutResponse struct {
	RequestID string `json:"requestId"`
	Revoked   bool   `json:"revoked"`
}

type authContext struct {
	Mode    string             `json:"mode"`
	User    *AccountRef        `json:"user"`
	Session authContextSession `json:"session"`
	Expiry  authContextExpiry  `json:"expiry"`
}

type authContextSession struct {
	ID    string `json:"id"`
	Scope string `json:"scope"`
}

type authContextExpiry struct {
	ExpiresAt  *time.Time `json:"expiresAt"`
	TTLSeconds *int64     `json:"ttlSeconds"`
	IsExpired  bool       `json:"isExpired"`
}

type meResponse struct {
	RequestID   string      `json:"requestId"`
	SessionID   string      `json:"sessionId"`
	User        AccountRef  `json:"user"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	AuthContext authContext `json:"authContext"`
}

// Login verifies credentials behind the login throttle and issues a session
// bound to the caller's client session id. Unknown-user and wrong-password
// collapse into one generic rejection to resist username enumeration; the
// internal reason still feeds throttle accounting.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	identity, _ := IdentityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid json body", requestID)
		return
	}
	if body.Username == "" || body.Password == "" {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "username and password are required", requestID)
		return
	}

	throttleKey := LoginThrottleKey(body.Username, ClientOrigin(r), identity.ClientSessionID)

	preCheck := h.throttle.Check(throttleKey)
	if !preCheck.Allowed {
		writeRateLimited(w, preCheck, requestID)
		return
	}

	account, reason, err := h.vault.Verify(r.Context(), body.Username, body.Password)
	if err != nil {
		sentry.CaptureException(err)
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to login", requestID)
		return
	}

	if reason != VerifyOK {
		if reason == VerifyAccountInactive {
			WriteError(w, http.StatusForbidden, CodeAccountDisabled, "account is disabled", requestID)
			return
		}

		failDecision := h.throttle.RegisterFailure(throttleKey)
		if !failDecision.Allowed {
			writeRateLimited(w, failDecision, requestID)
			return
		}

		WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid username or password", requestID)
		return
	}

	h.throttle.RegisterSuccess(throttleKey)

	session, err := h.ledger.Issue(r.Context(), account.ID, identity.ClientSessionID, h.sessionTTL)
	if err != nil {
		sentry.CaptureException(err)
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to create session", requestID)
		return
	}

	setTokenCookie(w, session.Token, session.TTL)
	WriteJSON(w, http.StatusOK, loginResponse{
		RequestID: requestID,
		SessionID: session.ClientSessionID,
		User:      account,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

// Refresh rotates the presented token. Rotation of an already expired token
// succeeds within the grace window; every failure maps to a stable code so
// clients can distinguish re-login from transient errors.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	identity, _ := IdentityFromContext(r.Context())

	token := ParseSessionTokenForAuthAPI(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, CodeTokenRequired, "session token is required", requestID)
		return
	}

	previous, err := h.ledger.Peek(r.Context(), token)
	if err != nil {
		sentry.CaptureException(err)
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to refresh token", requestID)
		return
	}

	session, reason, err := h.ledger.Rotate(r.Context(), token, identity.ClientSessionID, h.sessionTTL, h.refreshGrace)
	if err != nil {
		sentry.CaptureException(err)
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to refresh token", requestID)
		return
	}

	if session == nil {
		switch reason {
		case RotateTokenRequired:
			WriteError(w, http.StatusUnauthorized, CodeTokenRequired, "session token is required", requestID)
		case RotateTokenNotFound, RotateTokenRevoked:
			WriteError(w, http.StatusUnauthorized, CodeRefreshInvalidToken, "invalid session token", requestID)
		case RotateSessionMismatch:
			WriteError(w, http.StatusUnauthorized, CodeRefreshSessionMismatch, "session token does not match current session", requestID)
		case RotateUserInactive:
			WriteError(w, http.StatusForbidden, CodeAccountDisabled, "account is disabled", requestID)
		case RotateExpiredTooLong:
			WriteError(w, http.StatusUnauthorized, CodeRefreshExpired, "refresh window expired, please login again", requestID)
		default:
			WriteError(w, http.StatusUnauthorized, CodeRefreshFailed, "failed to refresh token", requestID)
		}
		return
	}

	var previousExpiresAt time.Time
	if previous != nil {
		previousExpiresAt = previous.ExpiresAt
	}

	setTokenCookie(w, session.Token, session.TTL)
	WriteJSON(w, http.StatusOK, refreshResponse{
		RequestID:         requestID,
		SessionID:         session.ClientSessionID,
		User:              AccountRef{ID: session.AccountID, Username: session.Username},
		Token:             session.Token,
		ExpiresAt:         session.ExpiresAt,
		PreviousExpiresAt: previousExpiresAt,
	})
}

// Logout revokes the presented token and clears the token cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	identity, _ := IdentityFromContext(r.Context())

	token := ParseSessionTokenForAuthAPI(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, CodeTokenRequired, "session token is required", requestID)
		return
	}

	revoked, err := h.ledger.Revoke(r.Context(), token, identity.ClientSessionID)
	if err != nil {
		sentry.CaptureException(err)
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to logout", requestID)
		return
	}

	clearTokenCookie(w)
	WriteJSON(w, http.StatusOK, logoutResponse{RequestID: requestID, Revoked: revoked})
}

// Me describes the authenticated caller and its scope.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	identity, _ := IdentityFromContext(r.Context())

	if !identity.Authenticated() {
		WriteError(w, http.StatusUnauthorized, CodeLoginRequired, "login required", requestID)
		return
	}

	now := time.Now().UTC()
	ttlSeconds := int64(identity.ExpiresAt.Sub(now).Seconds())
	isExpired := ttlSeconds <= 0
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	expiresAt := identity.ExpiresAt

	WriteJSON(w, http.StatusOK, meResponse{
		RequestID: requestID,
		SessionID: identity.ClientSessionID,
		User:      *identity.Account,
		ExpiresAt: expiresAt,
		AuthContext: authContext{
			Mode: h.mode,
			User: identity.Account,
			Session: authContextSession{
				ID:    identity.ClientSessionID,
				Scope: identity.Scope,
			},
			Expiry: authContextExpiry{
				ExpiresAt:  &expiresAt,
				TTLSeconds: &ttlSeconds,
				IsExpired:  isExpired,
			},
		},
	})
}

func writeRateLimited(w http.ResponseWriter, decision Decision, requestID string) {
	w.Header().Set("Retry-After", strconv.Itoa(decision.ResetSeconds))
	message := decision.Message
	if message == "" {
		message = "Too many failed login attempts"
	}
	writeErrorExtra(w, http.StatusTooManyRequests, CodeLoginRateLimited, message, requestID, map[string]any{
		"retryAfterSec": decision.ResetSeconds,
	})
}

func setTokenCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
