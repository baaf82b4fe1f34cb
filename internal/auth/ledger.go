package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	tokenBytes    = 48
	minSessionTTL = 300 * time.Second
)

// Ledger issues, validates, rotates, and revokes opaque session tokens.
// Only one-way hashes are persisted; a raw token is visible exactly once,
// at issuance or rotation.
type Ledger struct {
	store  SessionStore
	maxTTL time.Duration
	now    func() time.Time
}

func NewLedger(store SessionStore, maxTTL time.Duration) *Ledger {
	if maxTTL < minSessionTTL {
		maxTTL = minSessionTTL
	}

	return &Ledger{
		store:  store,
		maxTTL: maxTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func hashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

func newRawToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (l *Ledger) clampTTL(ttl time.Duration) time.Duration {
	if ttl < minSessionTTL {
		return minSessionTTL
	}
	if ttl > l.maxTTL {
		return l.maxTTL
	}
	return ttl
}

// Issue mints a new session bound to clientSessionID. The ttl is clamped to
// [300s, configured max].
func (l *Ledger) Issue(ctx context.Context, accountID int64, clientSessionID string, ttl time.Duration) (*IssuedSession, error) {
	safeSessionID := strings.TrimSpace(clientSessionID)
	if safeSessionID == "" {
		safeSessionID = "anonymous"
	}
	safeTTL := l.clampTTL(ttl)

	rawToken, err := newRawToken()
	if err != nil {
		return nil, err
	}

	row, err := l.store.InsertSession(ctx, accountID, hashToken(rawToken), safeSessionID, l.now().Add(safeTTL))
	if err != nil {
		return nil, err
	}

	return &IssuedSession{
		Token:           rawToken,
		AccountID:       row.AccountID,
		Username:        row.Username,
		ClientSessionID: row.ClientSessionID,
		ExpiresAt:       row.ExpiresAt,
		TTL:             safeTTL,
	}, nil
}

// Validate resolves a raw token to a live session. It returns nil when the
// token is unknown, revoked, expired, or owned by an inactive account. A
// non-empty clientSessionID must match the bound value; this blocks replay
// of a token from another client session.
func (l *Ledger) Validate(ctx context.Context, rawToken, clientSessionID string) (*SessionInfo, error) {
	safeToken := strings.TrimSpace(rawToken)
	if safeToken == "" {
		return nil, nil
	}

	row, err := l.store.FindSessionByTokenHash(ctx, hashToken(safeToken))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if row.IsRevoked || !row.AccountActive {
		return nil, nil
	}
	if !row.ExpiresAt.After(l.now()) {
		return nil, nil
	}
	if clientSessionID != "" && row.ClientSessionID != clientSessionID {
		return nil, nil
	}

	return sessionInfo(row), nil
}

// Rotate revokes the presented token and issues its successor for the same
// account and bound client session in one atomic step. A token that is
// already expired still rotates within the grace window, tolerating clock
// skew and offline gaps.
func (l *Ledger) Rotate(ctx context.Context, rawToken, clientSessionID string, ttl, grace time.Duration) (*IssuedSession, RotateReason, error) {
	safeToken := strings.TrimSpace(rawToken)
	if safeToken == "" {
		return nil, RotateTokenRequired, nil
	}

	safeTTL := l.clampTTL(ttl)
	if grace < 0 {
		grace = 0
	}
	now := l.now()

	row, err := l.store.FindSessionByTokenHash(ctx, hashToken(safeToken))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, RotateTokenNotFound, nil
		}
		return nil, RotateTokenNotFound, err
	}

	if clientSessionID != "" && row.ClientSessionID != clientSessionID {
		return nil, RotateSessionMismatch, nil
	}
	if row.IsRevoked {
		return nil, RotateTokenRevoked, nil
	}
	if !row.AccountActive {
		return nil, RotateUserInactive, nil
	}
	if row.ExpiresAt.IsZero() {
		return nil, RotateExpiresInvalid, nil
	}
	if !row.ExpiresAt.After(now) && now.Sub(row.ExpiresAt) > grace {
		return nil, RotateExpiredTooLong, nil
	}

	newToken, err := newRawToken()
	if err != nil {
		return nil, RotateTokenNotFound, err
	}

	newRow, err := l.store.RotateSession(ctx, row.ID, row.AccountID, hashToken(newToken), row.ClientSessionID, now.Add(safeTTL))
	if err != nil {
		if errors.Is(err, ErrSessionSuperseded) {
			// Lost the race against a concurrent rotation on the
			// same lineage.
			return nil, RotateTokenRevoked, nil
		}
		return nil, RotateTokenNotFound, err
	}

	return &IssuedSession{
		Token:           newToken,
		AccountID:       newRow.AccountID,
		Username:        newRow.Username,
		ClientSessionID: newRow.ClientSessionID,
		ExpiresAt:       newRow.ExpiresAt,
		TTL:             safeTTL,
	}, RotateOK, nil
}

// Revoke marks the matching non-revoked row revoked. When clientSessionID is
// non-empty the bound session must match.
func (l *Ledger) Revoke(ctx context.Context, rawToken, clientSessionID string) (bool, error) {
	safeToken := strings.TrimSpace(rawToken)
	if safeToken == "" {
		return false, nil
	}

	return l.store.RevokeSession(ctx, hashToken(safeToken), clientSessionID)
}

// RevokeAll revokes every active session of an account. This is the
// logout-everywhere and account-disable path.
func (l *Ledger) RevokeAll(ctx context.Context, accountID int64) (int64, error) {
	return l.store.RevokeAccountSessions(ctx, accountID)
}

// Peek resolves a token without expiry or revocation checks. It exists only
// to recover the bound client-session id when a caller presents a bearer
// token without one, and must never feed an authorization decision.
func (l *Ledger) Peek(ctx context.Context, rawToken string) (*SessionInfo, error) {
	safeToken := strings.TrimSpace(rawToken)
	if safeToken == "" {
		return nil, nil
	}

	row, err := l.store.FindSessionByTokenHash(ctx, hashToken(safeToken))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return sessionInfo(row), nil
}

func sessionInfo(row SessionRow) *SessionInfo {
	return &SessionInfo{
		SessionID:       row.ID,
		AccountID:       row.AccountID,
		Username:        row.Username,
		ClientSessionID: row.ClientSessionID,
		ExpiresAt:       row.ExpiresAt,
		IsRevoked:       row.IsRevoked,
		AccountActive:   row.AccountActive,
	}
}
