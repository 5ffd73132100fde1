package registry

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the embedded SQLite-backed fleet store: ethoscopes, users,
// incubators, runs, experiments, and alert dedup records.
type Store struct {
	db         *sql.DB
	mu         sync.RWMutex
	cleanupCfg CleanupConfig
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS ethoscopes (
	ethoscope_id TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	ip           TEXT NOT NULL,
	port         INTEGER NOT NULL,
	last_seen_at DATETIME NOT NULL,
	last_status  TEXT,
	active       INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	pin_hash      TEXT NOT NULL,
	is_admin      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS incubators (
	incubator_id TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	ip           TEXT,
	last_seen_at DATETIME
);

CREATE TABLE IF NOT EXISTS runs (
	run_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ethoscope_id  TEXT NOT NULL REFERENCES ethoscopes(ethoscope_id),
	user          TEXT,
	started_at    DATETIME NOT NULL,
	stopped_at    DATETIME,
	status        TEXT NOT NULL DEFAULT 'running',
	problems      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_ethoscope ON runs(ethoscope_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(ethoscope_id, status);

CREATE TABLE IF NOT EXISTS experiments (
	experiment_id TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	owner         TEXT,
	created_at    DATETIME NOT NULL,
	description   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alert_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id   TEXT NOT NULL,
	alert_type  TEXT NOT NULL,
	run_id      INTEGER,
	sent_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_logs_dedup ON alert_logs(device_id, alert_type, run_id);
`

// migrate runs the base schema and then a sequence of idempotent
// adjustments for databases created by earlier versions of this store.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.addColumnIfMissing("users", "telephone", "TEXT"); err != nil {
		return err
	}
	if err := s.addColumnIfMissing("alert_logs", "run_id", "INTEGER"); err != nil {
		return err
	}

	return s.migrateLegacyEthoscopePrimaryKey()
}

// addColumnIfMissing adds column to table with the given SQL type unless
// it is already present. PRAGMA table_info is read-only and safe to run
// unconditionally.
func (s *Store) addColumnIfMissing(table, column, sqlType string) error {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, sqlType))
	return err
}

// migrateLegacyEthoscopePrimaryKey rebuilds a legacy ethoscopes table that
// used an autoincrement surrogate "id" column instead of ethoscope_id as
// its primary key, deduping on ethoscope_id and keeping the most recently
// seen row for each.
func (s *Store) migrateLegacyEthoscopePrimaryKey() error {
	rows, err := s.db.Query(`PRAGMA table_info(ethoscopes)`)
	if err != nil {
		return err
	}
	hasLegacyID := false
	ethoscopeIDIsPK := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == "id" {
			hasLegacyID = true
		}
		if name == "ethoscope_id" && pk == 1 {
			ethoscopeIDIsPK = true
		}
	}
	rows.Close()

	if !hasLegacyID || ethoscopeIDIsPK {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE ethoscopes_new (
			ethoscope_id TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			ip           TEXT NOT NULL,
			port         INTEGER NOT NULL,
			last_seen_at DATETIME NOT NULL,
			last_status  TEXT,
			active       INTEGER NOT NULL DEFAULT 1
		)`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO ethoscopes_new (ethoscope_id, name, ip, port, last_seen_at, last_status, active)
		SELECT ethoscope_id, name, ip, port, last_seen_at, last_status, active
		FROM ethoscopes
		WHERE rowid IN (
			SELECT MAX(rowid) FROM ethoscopes GROUP BY ethoscope_id
		)`); err != nil {
		return err
	}

	if _, err := tx.Exec(`DROP TABLE ethoscopes`); err != nil {
		return err
	}
	if _, err := tx.Exec(`ALTER TABLE ethoscopes_new RENAME TO ethoscopes`); err != nil {
		return err
	}

	return tx.Commit()
}
