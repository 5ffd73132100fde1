package registry

import (
	"context"
	"database/sql"
	"time"
)

// LogAlert records that an alert of alertType was sent for device_id
// (optionally scoped to a run). Used for deduplication via
// HasAlertBeenSent: the notifier should call this only after a send that
// actually succeeded.
func (s *Store) LogAlert(ctx context.Context, deviceID, alertType string, runID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_logs (device_id, alert_type, run_id, sent_at)
		VALUES (?, ?, ?, ?)`, deviceID, alertType, nullableInt64(runID), time.Now())
	return err
}

// HasAlertBeenSent reports whether an alert of alertType has already been
// logged for device_id within the given run (or, if runID is nil, at all).
func (s *Store) HasAlertBeenSent(ctx context.Context, deviceID, alertType string, runID *int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if runID == nil {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alert_logs WHERE device_id = ? AND alert_type = ?`,
			deviceID, alertType).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alert_logs WHERE device_id = ? AND alert_type = ? AND run_id = ?`,
			deviceID, alertType, *runID).Scan(&count)
	}
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
