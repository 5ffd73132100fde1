package registry

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig tunes RunCleanupJobs' thresholds.
type CleanupConfig struct {
	RetireAfter        time.Duration // devices unseen for this long are marked inactive
	StuckStatusTimeout time.Duration // busy/unreached devices stuck this long are forced offline
}

// DefaultCleanupConfig returns the spec's documented defaults: retire
// after 90 days, unstick after 2 hours.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetireAfter:        90 * 24 * time.Hour,
		StuckStatusTimeout: 2 * time.Hour,
	}
}

// SetCleanupConfig overrides the store's cleanup thresholds.
func (s *Store) SetCleanupConfig(cfg CleanupConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupCfg = cfg
}

// RunCleanupJobs performs the node's periodic housekeeping. It satisfies
// pkg/scanner.Registry. Each sub-job is independent; a failure in one is
// logged and does not prevent the others from running.
func (s *Store) RunCleanupJobs(ctx context.Context) {
	s.mu.RLock()
	cfg := s.cleanupCfg
	s.mu.RUnlock()
	if cfg == (CleanupConfig{}) {
		cfg = DefaultCleanupConfig()
	}

	if err := s.retireStaleDevices(ctx, cfg.RetireAfter); err != nil {
		slog.Warn("registry: retire stale devices failed", "err", err)
	}
	if err := s.unstickDevices(ctx, cfg.StuckStatusTimeout); err != nil {
		slog.Warn("registry: unstick devices failed", "err", err)
	}
	if err := s.stopOrphanedRuns(ctx); err != nil {
		slog.Warn("registry: stop orphaned runs failed", "err", err)
	}
}

// retireStaleDevices marks active=0 on any device not seen within maxAge.
func (s *Store) retireStaleDevices(ctx context.Context, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	_, err := s.db.ExecContext(ctx, `
		UPDATE ethoscopes SET active = 0
		WHERE active = 1 AND last_seen_at < ?`, cutoff)
	return err
}

// unstickDevices forces a device's recorded status to offline if it has
// been stuck at busy or unreached for longer than timeout. The scanner's
// own device actors remain the authority on live status; this only
// corrects the last known value recorded in the store for devices the
// node may no longer be actively polling.
func (s *Store) unstickDevices(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	_, err := s.db.ExecContext(ctx, `
		UPDATE ethoscopes SET last_status = 'offline'
		WHERE last_status IN ('busy', 'unreached') AND last_seen_at < ?`, cutoff)
	return err
}

// stopOrphanedRuns finds devices with more than one "running" row and
// stops every one of them except the oldest, which is assumed to be the
// run actually in progress.
func (s *Store) stopOrphanedRuns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = 'stopped', stopped_at = ?
		WHERE status = 'running' AND run_id NOT IN (
			SELECT MIN(run_id) FROM runs WHERE status = 'running' GROUP BY ethoscope_id
		)`, time.Now())
	return err
}
