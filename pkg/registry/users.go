package registry

import (
	"context"
	"database/sql"
	"time"
)

// UserRecord is a persisted operator account.
type UserRecord struct {
	Username  string
	IsAdmin   bool
	Telephone string
	CreatedAt time.Time
}

// CreateUser adds a new operator account with the given PIN.
func (s *Store) CreateUser(ctx context.Context, username, pin string, isAdmin bool) error {
	hash, err := hashPIN(pin)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, pin_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?)`, username, hash, boolToInt(isAdmin), time.Now())
	return err
}

// VerifyUserPIN checks pin against the stored hash for username. On a
// successful match against a legacy hash format, it transparently
// rewrites the stored hash to the current pbkdf2 format before returning.
func (s *Store) VerifyUserPIN(ctx context.Context, username, pin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT pin_hash FROM users WHERE username = ?`, username).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, ErrUnknownUser
	}
	if err != nil {
		return false, err
	}

	if !verifyPIN(pin, stored) {
		return false, nil
	}

	if !isCurrentFormat(stored) {
		upgraded, err := hashPIN(pin)
		if err == nil {
			_, _ = s.db.ExecContext(ctx, `UPDATE users SET pin_hash = ? WHERE username = ?`, upgraded, username)
		}
	}

	return true, nil
}

// GetUser returns a user's profile, or (nil, nil) if unknown.
func (s *Store) GetUser(ctx context.Context, username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       UserRecord
		isAdmin   int
		telephone sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, is_admin, telephone, created_at FROM users WHERE username = ?`, username,
	).Scan(&rec.Username, &isAdmin, &telephone, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.IsAdmin = isAdmin != 0
	rec.Telephone = telephone.String
	return &rec, nil
}

// CountUsers reports how many user accounts exist, used to decide
// whether a legacy-config migration is needed at startup.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// LegacyUser is one entry from a legacy user config file, migrated into
// the users table iff the table is currently empty.
type LegacyUser struct {
	Username  string
	PINHash   string // already hashed, in any format verifyPIN accepts
	IsAdmin   bool
	Telephone string
}

// MigrateLegacyUsers imports users from a legacy config file format. It
// is a no-op if the users table is non-empty, so it is safe to call
// unconditionally at startup.
func (s *Store) MigrateLegacyUsers(ctx context.Context, legacy []LegacyUser) error {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 || len(legacy) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range legacy {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (username, pin_hash, is_admin, telephone, created_at)
			VALUES (?, ?, ?, ?, ?)`, u.Username, u.PINHash, boolToInt(u.IsAdmin), u.Telephone, time.Now()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
