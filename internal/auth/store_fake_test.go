package auth

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used across the package tests.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts []*Account
	sessions []*SessionRow
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) accountByID(id int64) *Account {
	for _, account := range s.accounts {
		if account.ID == id {
			return account
		}
	}
	return nil
}

func (s *fakeStore) FindAccountByUsername(_ context.Context, username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.Username == username {
			return *account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *fakeStore) FindAccountByID(_ context.Context, id int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account := s.accountByID(id); account != nil {
		return *account, nil
	}
	return Account{}, ErrAccountNotFound
}

func (s *fakeStore) FirstAccount(_ context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.accounts) == 0 {
		return Account{}, ErrAccountNotFound
	}
	return *s.accounts[0], nil
}

func (s *fakeStore) UpsertAccount(_ context.Context, username, passwordHash, passwordSalt string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.Username == username {
			account.PasswordHash = passwordHash
			account.PasswordSalt = passwordSalt
			account.IsActive = true
			account.UpdatedAt = time.Now().UTC()
			return *account, nil
		}
	}

	account := &Account{
		ID:           s.id(),
		Username:     username,
		PasswordHash: passwordHash,
		PasswordSalt: passwordSalt,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	s.accounts = append(s.accounts, account)
	return *account, nil
}

func (s *fakeStore) SetAccountActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.accountByID(id)
	if account == nil {
		return ErrAccountNotFound
	}
	account.IsActive = active
	return nil
}

func (s *fakeStore) sessionRow(session *SessionRow) SessionRow {
	row := *session
	if account := s.accountByID(session.AccountID); account != nil {
		row.Username = account.Username
		row.AccountActive = account.IsActive
	}
	return row
}

func (s *fakeStore) InsertSession(_ context.Context, accountID int64, tokenHash, clientSessionID string, expiresAt time.Time) (SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accountByID(accountID) == nil {
		return SessionRow{}, ErrAccountNotFound
	}

	session := &SessionRow{
		ID:              s.id(),
		AccountID:       accountID,
		TokenHash:       tokenHash,
		ClientSessionID: clientSessionID,
		ExpiresAt:       expiresAt,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	s.sessions = append(s.sessions, session)
	return s.sessionRow(session), nil
}

func (s *fakeStore) FindSessionByTokenHash(_ context.Context, tokenHash string) (SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			return s.sessionRow(session), nil
		}
	}
	return SessionRow{}, ErrSessionNotFound
}

func (s *fakeStore) RotateSession(_ context.Context, oldID, accountID int64, newTokenHash, clientSessionID string, newExpiresAt time.Time) (SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old *SessionRow
	for _, session := range s.sessions {
		if session.ID == oldID {
			old = session
			break
		}
	}
	if old == nil {
		return SessionRow{}, ErrSessionNotFound
	}
	if old.IsRevoked {
		return SessionRow{}, ErrSessionSuperseded
	}
	old.IsRevoked = true
	old.UpdatedAt = time.Now().UTC()

	session := &SessionRow{
		ID:              s.id(),
		AccountID:       accountID,
		TokenHash:       newTokenHash,
		ClientSessionID: clientSessionID,
		ExpiresAt:       newExpiresAt,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	s.sessions = append(s.sessions, session)
	return s.sessionRow(session), nil
}

func (s *fakeStore) RevokeSession(_ context.Context, tokenHash, clientSessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.TokenHash != tokenHash || session.IsRevoked {
			continue
		}
		if clientSessionID != "" && session.ClientSessionID != clientSessionID {
			continue
		}
		session.IsRevoked = true
		session.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (s *fakeStore) RevokeAccountSessions(_ context.Context, accountID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked int64
	for _, session := range s.sessions {
		if session.AccountID == accountID && !session.IsRevoked {
			session.IsRevoked = true
			session.UpdatedAt = time.Now().UTC()
			revoked++
		}
	}
	return revoked, nil
}

func (s *fakeStore) activeSessionCount(accountID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, session := range s.sessions {
		if session.AccountID == accountID && !session.IsRevoked {
			count++
		}
	}
	return count
}
