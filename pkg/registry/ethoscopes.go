package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrBlacklistedName is returned by UpdateEthoscope when asked to persist
// a reserved name. Blacklisted devices still run live in the scanner; they
// are simply never written to the store.
var ErrBlacklistedName = errors.New("registry: blacklisted ethoscope name")

var blacklistedNames = map[string]struct{}{
	"ETHOSCOPE_000": {},
}

func isBlacklisted(name string) bool {
	_, blacklisted := blacklistedNames[strings.ToUpper(name)]
	return blacklisted
}

// EthoscopeRecord is a persisted device row.
type EthoscopeRecord struct {
	ID         string
	Name       string
	IP         string
	Port       int
	LastSeenAt time.Time
	LastStatus string
	Active     bool
}

// UpdateEthoscope upserts a device's directory entry. It satisfies
// pkg/scanner.Registry. Names on the blacklist (ETHOSCOPE_000) are
// refused outright: the scanner still polls them, but the store never
// learns of them.
func (s *Store) UpdateEthoscope(ctx context.Context, id, name, ip string, port int) error {
	if isBlacklisted(name) {
		return ErrBlacklistedName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ethoscopes (ethoscope_id, name, ip, port, last_seen_at, active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(ethoscope_id) DO UPDATE SET
			name = excluded.name,
			ip = excluded.ip,
			port = excluded.port,
			last_seen_at = excluded.last_seen_at,
			active = 1
	`, id, name, ip, port, time.Now())
	return err
}

// UpdateStatus records the device's most recently observed status name,
// used by cleanup jobs to find devices stuck busy or unreachable.
func (s *Store) UpdateStatus(ctx context.Context, id, statusName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE ethoscopes SET last_status = ? WHERE ethoscope_id = ?`, statusName, id)
	return err
}

// GetEthoscope returns a device's directory entry, or (nil, nil) if unknown.
func (s *Store) GetEthoscope(ctx context.Context, id string) (*EthoscopeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT ethoscope_id, name, ip, port, last_seen_at, last_status, active
		FROM ethoscopes WHERE ethoscope_id = ?`, id)
	return scanEthoscopeRow(row)
}

// ListEthoscopes returns every persisted device, most recently seen first.
func (s *Store) ListEthoscopes(ctx context.Context) ([]*EthoscopeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ethoscope_id, name, ip, port, last_seen_at, last_status, active
		FROM ethoscopes ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EthoscopeRecord
	for rows.Next() {
		rec, err := scanEthoscopeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEthoscopeRow(row rowScanner) (*EthoscopeRecord, error) {
	var (
		rec        EthoscopeRecord
		lastStatus sql.NullString
		active     int
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.IP, &rec.Port, &rec.LastSeenAt, &lastStatus, &active); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.LastStatus = lastStatus.String
	rec.Active = active != 0
	return &rec, nil
}
