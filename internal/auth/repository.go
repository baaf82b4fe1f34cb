package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository implements Store on Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, username, password_hash, password_salt, is_active, created_at, updated_at`

func scanAccount(row *sql.Row) (Account, error) {
	var account Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.PasswordSalt,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("scan account: %w", err)
	}

	return account, nil
}

func (r *Repository) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE username = $1
	`, username)

	return scanAccount(row)
}

func (r *Repository) FindAccountByID(ctx context.Context, id int64) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	return scanAccount(row)
}

func (r *Repository) FirstAccount(ctx context.Context) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY id ASC
		LIMIT 1
	`)

	return scanAccount(row)
}

func (r *Repository) UpsertAccount(ctx context.Context, username, passwordHash, passwordSalt string) (Account, error) {
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (username, password_hash, password_salt, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (username)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			password_salt = EXCLUDED.password_salt,
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING `+accountColumns+`
	`, username, passwordHash, passwordSalt, now)

	account, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("upsert account: %w", err)
	}

	return account, nil
}

func (r *Repository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set account active rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

const sessionColumns = `
	s.id, s.account_id, a.username, s.token_hash, s.client_session_id,
	s.is_revoked, a.is_active, s.expires_at, s.created_at, s.updated_at`

func scanSession(row *sql.Row) (SessionRow, error) {
	var session SessionRow
	err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.Username,
		&session.TokenHash,
		&session.ClientSessionID,
		&session.IsRevoked,
		&session.AccountActive,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRow{}, ErrSessionNotFound
		}
		return SessionRow{}, fmt.Errorf("scan session: %w", err)
	}

	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

func (r *Repository) InsertSession(ctx context.Context, accountID int64, tokenHash, clientSessionID string, expiresAt time.Time) (SessionRow, error) {
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO auth_sessions (account_id, token_hash, client_session_id, is_revoked, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, $4, $5, $5)
			RETURNING *
		)
		SELECT `+sessionColumns+`
		FROM inserted s
		JOIN accounts a ON a.id = s.account_id
	`, accountID, tokenHash, clientSessionID, expiresAt.UTC(), now)

	session, err := scanSession(row)
	if err != nil {
		return SessionRow{}, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

func (r *Repository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (SessionRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM auth_sessions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.token_hash = $1
	`, tokenHash)

	return scanSession(row)
}

// RotateSession revokes the old row and inserts its replacement inside one
// transaction. The conditional UPDATE is the single-winner guard: a
// concurrent rotation that already flipped is_revoked makes this attempt
// fail with ErrSessionSuperseded and nothing is committed.
func (r *Repository) RotateSession(ctx context.Context, oldID, accountID int64, newTokenHash, clientSessionID string, newExpiresAt time.Time) (SessionRow, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SessionRow{}, fmt.Errorf("begin session rotation tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auth_sessions
		SET is_revoked = TRUE, updated_at = $2
		WHERE id = $1 AND is_revoked = FALSE
	`, oldID, now)
	if err != nil {
		return SessionRow{}, fmt.Errorf("revoke rotated session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return SessionRow{}, fmt.Errorf("revoke rotated session rows affected: %w", err)
	}
	if affected == 0 {
		return SessionRow{}, ErrSessionSuperseded
	}

	row := tx.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO auth_sessions (account_id, token_hash, client_session_id, is_revoked, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, $4, $5, $5)
			RETURNING *
		)
		SELECT `+sessionColumns+`
		FROM inserted s
		JOIN accounts a ON a.id = s.account_id
	`, accountID, newTokenHash, clientSessionID, newExpiresAt.UTC(), now)

	session, err := scanSession(row)
	if err != nil {
		return SessionRow{}, fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SessionRow{}, fmt.Errorf("commit session rotation tx: %w", err)
	}

	return session, nil
}

func (r *Repository) RevokeSession(ctx context.Context, tokenHash, clientSessionID string) (bool, error) {
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if clientSessionID != "" {
		res, err = r.db.ExecContext(ctx, `
			UPDATE auth_sessions
			SET is_revoked = TRUE, updated_at = $3
			WHERE token_hash = $1 AND client_session_id = $2 AND is_revoked = FALSE
		`, tokenHash, clientSessionID, now)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE auth_sessions
			SET is_revoked = TRUE, updated_at = $2
			WHERE token_hash = $1 AND is_revoked = FALSE
		`, tokenHash, now)
	}
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session rows affected: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) RevokeAccountSessions(ctx context.Context, accountID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET is_revoked = TRUE, updated_at = $2
		WHERE account_id = $1 AND is_revoked = FALSE
	`, accountID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke account sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke account sessions rows affected: %w", err)
	}

	return affected, nil
}
