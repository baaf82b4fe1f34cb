package auth

import (
	"crypto/subtle"
	"strconv"
	"strings"
)

// Scope prefixes. Every downstream record store shards by exactly one of
// these; "anonymous:" is a legacy alias kept read-equivalent for listings.
const (
	scopeUserPrefix      = "user:"
	scopeSessionPrefix   = "session:"
	scopeAnonymousPrefix = "anonymous:"
)

// ResolveScope derives the ownership scope downstream stores isolate by:
// "user:<id>" for an authenticated caller, else "session:<clientSessionID>".
func ResolveScope(accountID int64, authenticated bool, clientSessionID string) string {
	if authenticated {
		return scopeUserPrefix + strconv.FormatInt(accountID, 10)
	}

	return scopeSessionPrefix + clientSessionID
}

// ScopeAliases expands a scope to the forms that are read-equivalent for
// listing. Writes always use the canonical scope; session scopes alias to
// their legacy anonymous spelling and back.
func ScopeAliases(scope string) []string {
	safeScope := strings.TrimSpace(scope)
	if safeScope == "" {
		return nil
	}

	aliases := []string{safeScope}
	switch {
	case strings.HasPrefix(safeScope, scopeSessionPrefix):
		if sid := safeScope[len(scopeSessionPrefix):]; sid != "" {
			aliases = append(aliases, scopeAnonymousPrefix+sid)
		}
	case strings.HasPrefix(safeScope, scopeAnonymousPrefix):
		if sid := safeScope[len(scopeAnonymousPrefix):]; sid != "" {
			aliases = append(aliases, scopeSessionPrefix+sid)
		}
	}

	return aliases
}

// ScopePolicy decides cross-scope visibility. Absent either guard it fails
// closed.
type ScopePolicy struct {
	allowCrossScope  bool
	singleTenant     bool
	operatorToken    string
	isolationEnabled bool
}

// NewScopePolicy builds the policy. singleTenant corresponds to "local"
// auth mode, where the deployment owns all of its data and an enabled
// override needs no extra proof.
func NewScopePolicy(allowCrossScope, singleTenant bool, operatorToken string, isolationEnabled bool) ScopePolicy {
	return ScopePolicy{
		allowCrossScope:  allowCrossScope,
		singleTenant:     singleTenant,
		operatorToken:    strings.TrimSpace(operatorToken),
		isolationEnabled: isolationEnabled,
	}
}

// CanAccessAllScopes reports whether the caller may see every scope. The
// global switch must be on, and either the deployment is single-tenant or
// the caller presented the separately configured operator token.
func (p ScopePolicy) CanAccessAllScopes(providedToken string) bool {
	if !p.allowCrossScope {
		return false
	}
	if p.singleTenant {
		return true
	}
	if p.operatorToken == "" {
		return false
	}

	provided := strings.TrimSpace(providedToken)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(p.operatorToken)) == 1
}

// ListScopes returns the scopes a downstream store may match when listing
// records for the given canonical scope. With isolation enabled only the
// canonical form and its alias qualify; with it disabled the legacy bare
// session id is also included so pre-scoping rows stay readable.
func (p ScopePolicy) ListScopes(scope, clientSessionID string) []string {
	scopes := ScopeAliases(scope)
	if p.isolationEnabled {
		return scopes
	}

	if clientSessionID != "" && !strings.HasPrefix(scope, scopeUserPrefix) {
		scopes = append(scopes, clientSessionID)
	}

	return scopes
}
