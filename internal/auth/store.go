package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionSuperseded is returned by RotateSession when another
	// rotation won the race on the same lineage.
	ErrSessionSuperseded = errors.New("session already superseded")
)

// AccountStore is the durable keyed store behind the CredentialVault.
type AccountStore interface {
	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	FindAccountByID(ctx context.Context, id int64) (Account, error)
	// FirstAccount returns the oldest account, or ErrAccountNotFound when
	// the store is empty.
	FirstAccount(ctx context.Context) (Account, error)
	// UpsertAccount inserts or replaces the credential material for a
	// username and reactivates the account.
	UpsertAccount(ctx context.Context, username, passwordHash, passwordSalt string) (Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
}

// SessionStore is the durable keyed store behind the SessionLedger. Rows are
// never deleted; revocation flips is_revoked so the lineage stays auditable.
type SessionStore interface {
	InsertSession(ctx context.Context, accountID int64, tokenHash, clientSessionID string, expiresAt time.Time) (SessionRow, error)
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (SessionRow, error)
	// RotateSession atomically revokes the row identified by oldID and
	// inserts the replacement. It must fail with ErrSessionSuperseded if
	// oldID is already revoked, so concurrent rotations on one lineage
	// produce exactly one winner.
	RotateSession(ctx context.Context, oldID, accountID int64, newTokenHash, clientSessionID string, newExpiresAt time.Time) (SessionRow, error)
	// RevokeSession marks the matching non-revoked row revoked. When
	// clientSessionID is non-empty the bound session must match.
	RevokeSession(ctx context.Context, tokenHash, clientSessionID string) (bool, error)
	RevokeAccountSessions(ctx context.Context, accountID int64) (int64, error)
}

// Store is the full durable contract the auth core needs.
type Store interface {
	AccountStore
	SessionStore
}
