package auth

import "time"

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	PasswordSalt string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountRef is the externally visible slice of an account. Password
// material never leaves the vault.
type AccountRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// SessionRow mirrors one auth_sessions row joined with its owning account.
type SessionRow struct {
	ID              int64
	AccountID       int64
	Username        string
	TokenHash       string
	ClientSessionID string
	IsRevoked       bool
	AccountActive   bool
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionInfo is what Validate and Peek return. Peek fills the status
// flags without judging them; Validate only ever returns live sessions.
type SessionInfo struct {
	SessionID       int64
	AccountID       int64
	Username        string
	ClientSessionID string
	ExpiresAt       time.Time
	IsRevoked       bool
	AccountActive   bool
}

// IssuedSession carries a freshly minted raw token. The raw token is handed
// to the caller exactly once and never persisted or logged.
type IssuedSession struct {
	Token           string
	AccountID       int64
	Username        string
	ClientSessionID string
	ExpiresAt       time.Time
	TTL             time.Duration
}

// VerifyReason explains a credential-verification failure. The external API
// collapses NOT_FOUND and INVALID_PASSWORD into one generic rejection; the
// internal reason still drives throttle accounting and logging.
type VerifyReason string

const (
	VerifyOK              VerifyReason = "OK"
	VerifyNotFound        VerifyReason = "NOT_FOUND"
	VerifyAccountInactive VerifyReason = "ACCOUNT_INACTIVE"
	VerifyInvalidPassword VerifyReason = "INVALID_PASSWORD"
)

// RotateReason explains the outcome of a rotation attempt.
type RotateReason string

const (
	RotateOK              RotateReason = "OK"
	RotateTokenRequired   RotateReason = "TOKEN_REQUIRED"
	RotateTokenNotFound   RotateReason = "TOKEN_NOT_FOUND"
	RotateSessionMismatch RotateReason = "SESSION_MISMATCH"
	RotateTokenRevoked    RotateReason = "TOKEN_REVOKED"
	RotateUserInactive    RotateReason = "USER_INACTIVE"
	RotateExpiredTooLong  RotateReason = "EXPIRED_TOO_LONG"
	RotateExpiresInvalid  RotateReason = "EXPIRES_INVALID"
)

// Decision is the verdict of a throttle check.
type Decision struct {
	Allowed      bool
	Remaining    int
	ResetSeconds int
	Message      string
}
