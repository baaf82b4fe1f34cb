package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations  = 120_000
	pbkdf2KeyLength   = 32
	saltBytes         = 16
	minPasswordLength = 6
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordTooShort = errors.New("password too short")
)

// Vault stores accounts and verifies passwords. Usernames are matched
// case-insensitively; only the normalized form is persisted.
type Vault struct {
	store           AccountStore
	defaultUsername string
	defaultPassword string
}

func NewVault(store AccountStore, defaultUsername, defaultPassword string) *Vault {
	defaultUsername = normalizeUsername(defaultUsername)
	if defaultUsername == "" {
		defaultUsername = "demo"
	}
	defaultPassword = strings.TrimSpace(defaultPassword)
	if defaultPassword == "" {
		defaultPassword = "demo123456"
	}

	return &Vault{
		store:           store,
		defaultUsername: defaultUsername,
		defaultPassword: defaultPassword,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func hashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// Upsert creates the account or replaces its credential material. A fresh
// salt is derived on every call and the account is reactivated. Idempotent
// on username: repeated upserts keep exactly one row.
func (v *Vault) Upsert(ctx context.Context, username, password string) (AccountRef, error) {
	safeUsername := normalizeUsername(username)
	safePassword := strings.TrimSpace(password)
	if safeUsername == "" {
		return AccountRef{}, ErrUsernameRequired
	}
	if len(safePassword) < minPasswordLength {
		return AccountRef{}, ErrPasswordTooShort
	}

	saltRaw := make([]byte, saltBytes)
	if _, err := rand.Read(saltRaw); err != nil {
		return AccountRef{}, fmt.Errorf("generate password salt: %w", err)
	}
	salt := hex.EncodeToString(saltRaw)

	account, err := v.store.UpsertAccount(ctx, safeUsername, hashPassword(safePassword, salt), salt)
	if err != nil {
		return AccountRef{}, err
	}

	return AccountRef{ID: account.ID, Username: account.Username}, nil
}

// Verify checks a credential pair. The hash comparison is constant-time.
// The returned reason is internal only; callers expose a single generic
// rejection for NOT_FOUND and INVALID_PASSWORD.
func (v *Vault) Verify(ctx context.Context, username, password string) (AccountRef, VerifyReason, error) {
	safeUsername := normalizeUsername(username)
	safePassword := strings.TrimSpace(password)
	if safeUsername == "" || safePassword == "" {
		return AccountRef{}, VerifyNotFound, nil
	}

	account, err := v.store.FindAccountByUsername(ctx, safeUsername)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AccountRef{}, VerifyNotFound, nil
		}
		return AccountRef{}, VerifyNotFound, err
	}

	if !account.IsActive {
		return AccountRef{}, VerifyAccountInactive, nil
	}

	computed := hashPassword(safePassword, account.PasswordSalt)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(account.PasswordHash)) != 1 {
		return AccountRef{}, VerifyInvalidPassword, nil
	}

	return AccountRef{ID: account.ID, Username: account.Username}, VerifyOK, nil
}

// EnsureDefaultAccount bootstraps one account when the vault is empty and is
// a no-op otherwise.
func (v *Vault) EnsureDefaultAccount(ctx context.Context) (AccountRef, error) {
	account, err := v.store.FirstAccount(ctx)
	if err == nil {
		return AccountRef{ID: account.ID, Username: account.Username}, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return AccountRef{}, err
	}

	return v.Upsert(ctx, v.defaultUsername, v.defaultPassword)
}

// SetActive flips the active flag. Accounts are never hard-deleted;
// deactivation is the disable path.
func (v *Vault) SetActive(ctx context.Context, accountID int64, active bool) error {
	return v.store.SetAccountActive(ctx, accountID, active)
}

// FindByUsername resolves a normalized username to its account reference.
func (v *Vault) FindByUsername(ctx context.Context, username string) (AccountRef, error) {
	account, err := v.store.FindAccountByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return AccountRef{}, err
	}

	return AccountRef{ID: account.ID, Username: account.Username}, nil
}
