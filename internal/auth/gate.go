package auth

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SessionIDHeader    = "x-session-id"
	SessionTokenHeader = "x-session-token"
	RequestIDHeader    = "x-request-id"
	APITokenHeader     = "x-api-token"

	SessionCookieName = "careerhero_session"
	TokenCookieName   = "careerhero_auth"
)

var clientSessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{2,127}$`)

// ValidClientSessionID reports whether the opaque client-session id matches
// the accepted grammar.
func ValidClientSessionID(sessionID string) bool {
	return clientSessionIDPattern.MatchString(sessionID)
}

// Identity is the caller identity the gate resolves for each request.
type Identity struct {
	ClientSessionID string
	Account         *AccountRef // nil when unauthenticated
	ExpiresAt       time.Time   // token expiry, zero when unauthenticated
	Scope           string
}

func (id Identity) Authenticated() bool { return id.Account != nil }

type identityContextKey struct{}
type requestIDContextKey struct{}

func withIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity the AccessGate attached to the
// request. Downstream stores derive their ownership scope from it.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

// GateConfig is the policy surface of the AccessGate.
type GateConfig struct {
	// Mode is "local" (per-user credentials) or "token" (shared operator
	// secret guards every protected path).
	Mode string
	// APIToken is the shared operator secret for token mode.
	APIToken string
	// RequireSessionID rejects requests without a client session id on
	// non-public paths instead of generating one.
	RequireSessionID bool
	// RequireLoginForProtected turns the gated prefixes into
	// login-required routes in local mode.
	RequireLoginForProtected bool
	// GatedPrefixes are the path prefixes of login-required routes.
	GatedPrefixes []string
}

// AccessGate validates the client session id, resolves the bearer token
// against the ledger, computes the ownership scope, and places the identity
// in the request context.
type AccessGate struct {
	ledger *Ledger
	cfg    GateConfig
}

func NewAccessGate(ledger *Ledger, cfg GateConfig) *AccessGate {
	if cfg.Mode != "token" {
		cfg.Mode = "local"
	}

	return &AccessGate{ledger: ledger, cfg: cfg}
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/api/auth/login", "/api/auth/refresh":
		return true
	}

	return strings.HasPrefix(path, "/health/")
}

func (g *AccessGate) isGatedPath(path string) bool {
	if !g.cfg.RequireLoginForProtected {
		return false
	}
	if isPublicPath(path) || strings.HasPrefix(path, "/api/auth/") {
		return false
	}

	for _, prefix := range g.cfg.GatedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// parseSessionToken extracts the bearer session token from its dedicated
// header or the persisted cookie.
func parseSessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionTokenHeader)); token != "" {
		return token
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}

	return ""
}

// ParseSessionTokenForAuthAPI additionally accepts the Authorization bearer
// fallback, used by the auth endpoints themselves.
func ParseSessionTokenForAuthAPI(r *http.Request) string {
	if token := parseSessionToken(r); token != "" {
		return token
	}

	return bearerToken(r)
}

func parseOperatorToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(APITokenHeader)); token != "" {
		return token
	}

	return bearerToken(r)
}

// ClientOrigin is the best-effort caller origin used in throttle keys.
func ClientOrigin(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		host := r.RemoteAddr
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		return host
	}

	return ""
}

// Middleware runs the gate sequence: session-id grammar, token resolution,
// scope computation, context injection. Responses always echo the request id
// and client session id and refresh the continuity cookie, which carries
// only the session id, never the bearer token.
func (g *AccessGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := withRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		path := r.URL.Path

		inboundSessionID := strings.TrimSpace(r.Header.Get(SessionIDHeader))
		if inboundSessionID == "" {
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				inboundSessionID = strings.TrimSpace(cookie.Value)
			}
		}

		if inboundSessionID != "" && !ValidClientSessionID(inboundSessionID) {
			WriteError(w, http.StatusBadRequest, CodeBadRequest, "x-session-id is invalid", requestID)
			return
		}

		sessionRequired := g.cfg.Mode == "token" || g.cfg.RequireSessionID
		if inboundSessionID == "" && sessionRequired && !isPublicPath(path) {
			WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "x-session-id is required", requestID)
			return
		}

		sessionID := inboundSessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		token := parseSessionToken(r)
		if token == "" && strings.HasPrefix(path, "/api/auth/") {
			token = ParseSessionTokenForAuthAPI(r)
		}

		// A bearer token without a session id recovers the bound id via
		// peek. Peek never authorizes anything by itself; the full
		// validation below still decides.
		if token != "" && inboundSessionID == "" {
			if rebound, err := g.ledger.Peek(ctx, token); err == nil && rebound != nil {
				sessionID = rebound.ClientSessionID
			}
		}

		identity := Identity{ClientSessionID: sessionID}

		if token != "" {
			info, err := g.ledger.Validate(ctx, token, sessionID)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, CodeInternalError, "failed to validate session token", requestID)
				return
			}
			if info == nil {
				// Present but invalid: unauthenticated on public
				// paths, rejected anywhere else.
				if g.cfg.Mode != "token" && g.isGatedPath(path) {
					setSessionHeaders(w, sessionID)
					WriteError(w, http.StatusUnauthorized, CodeLoginRequired, "login required", requestID)
					return
				}
				if !isPublicPath(path) {
					setSessionHeaders(w, sessionID)
					WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired session token", requestID)
					return
				}
			} else {
				identity.Account = &AccountRef{ID: info.AccountID, Username: info.Username}
				identity.ExpiresAt = info.ExpiresAt
			}
		}

		if g.cfg.Mode != "token" && !identity.Authenticated() && g.isGatedPath(path) {
			setSessionHeaders(w, sessionID)
			WriteError(w, http.StatusUnauthorized, CodeLoginRequired, "login required", requestID)
			return
		}

		if g.cfg.Mode == "token" && !isPublicPath(path) {
			expected := strings.TrimSpace(g.cfg.APIToken)
			if expected == "" {
				WriteError(w, http.StatusInternalServerError, CodeInternalError, "API_TOKEN is not configured", requestID)
				return
			}
			if parseOperatorToken(r) != expected {
				setSessionHeaders(w, sessionID)
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api token", requestID)
				return
			}
		}

		identity.Scope = ResolveScope(accountID(identity.Account), identity.Authenticated(), sessionID)
		ctx = withIdentity(ctx, identity)

		setSessionHeaders(w, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(account *AccountRef) int64 {
	if account == nil {
		return 0
	}
	return account.ID
}

func setSessionHeaders(w http.ResponseWriter, sessionID string) {
	w.Header().Set(SessionIDHeader, sessionID)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
