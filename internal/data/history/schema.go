package history

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS snapshots (
  project_key TEXT NOT NULL DEFAULT 'default',
  run_id TEXT NOT NULL,
  schema_version INTEGER NOT NULL,
  ts_utc TEXT NOT NULL,
  status TEXT NOT NULL,
  passed INTEGER NOT NULL,
  quick INTEGER NOT NULL DEFAULT 0,
  total INTEGER NOT NULL,
  errors INTEGER NOT NULL,
  warnings INTEGER NOT NULL,
  infos INTEGER NOT NULL,
  suppressed INTEGER NOT NULL DEFAULT 0,
  files INTEGER NOT NULL,
  modules INTEGER NOT NULL,
  cycles INTEGER NOT NULL,
  clusters INTEGER NOT NULL,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  PRIMARY KEY (project_key, run_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_project_ts ON snapshots(project_key, ts_utc);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE snapshots ADD COLUMN edges INTEGER NOT NULL DEFAULT 0;
ALTER TABLE snapshots ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0;
`,
	},
}

// EnsureSchema applies pending migrations, one transaction each. A database
// written by a newer build is rejected.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
