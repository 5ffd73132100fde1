package registry

import (
	"context"
	"database/sql"
	"time"
)

// RunRecord is a persisted tracking session row.
type RunRecord struct {
	RunID       int64
	EthoscopeID string
	User        string
	StartedAt   time.Time
	StoppedAt   *time.Time
	Status      string
	Problems    string
}

// AddRun records the start of a new tracking session for a device.
func (s *Store) AddRun(ctx context.Context, ethoscopeID, user string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (ethoscope_id, user, started_at, status, problems)
		VALUES (?, ?, ?, 'running', '')`, ethoscopeID, user, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// StopRun marks a run stopped. It is a no-op if the run is already stopped.
func (s *Store) StopRun(ctx context.Context, runID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = 'stopped', stopped_at = ?
		WHERE run_id = ? AND status = 'running'`, time.Now(), runID)
	return err
}

// FlagProblem appends a problem note to a run's problems log. It never
// overwrites prior notes.
func (s *Store) FlagProblem(ctx context.Context, runID int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET problems = problems || CASE WHEN problems = '' THEN '' ELSE char(10) END || ?
		WHERE run_id = ?`, note, runID)
	return err
}

// ActiveRunsFor returns every run currently marked running for a device,
// oldest first.
func (s *Store) ActiveRunsFor(ctx context.Context, ethoscopeID string) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ethoscope_id, user, started_at, stopped_at, status, problems
		FROM runs WHERE ethoscope_id = ? AND status = 'running'
		ORDER BY started_at ASC`, ethoscopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRunRow(row rowScanner) (*RunRecord, error) {
	var (
		rec       RunRecord
		user      sql.NullString
		stoppedAt sql.NullTime
	)
	if err := row.Scan(&rec.RunID, &rec.EthoscopeID, &user, &rec.StartedAt, &stoppedAt, &rec.Status, &rec.Problems); err != nil {
		return nil, err
	}
	rec.User = user.String
	if stoppedAt.Valid {
		rec.StoppedAt = &stoppedAt.Time
	}
	return &rec, nil
}

// AddToExperiment records or updates an experiment's metadata row.
func (s *Store) AddToExperiment(ctx context.Context, experimentID, name, owner, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (experiment_id, name, owner, created_at, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			description = excluded.description
	`, experimentID, name, owner, time.Now(), description)
	return err
}
