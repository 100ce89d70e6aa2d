// Package history persists one summary row per validation run in SQLite so
// later runs can report how the violation counts moved.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName     = "sqlite"
	maxAttempts    = 5
	defaultProject = "default"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL keep watch-mode reruns from tripping over each other.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records a snapshot. Saving the same run id twice overwrites the row.
func (s *Store) Save(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.ProjectKey = projectKeyOrDefault(snapshot.ProjectKey)
	if snapshot.RunID == "" {
		snapshot.RunID = uuid.NewString()
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	if snapshot.SchemaVersion == 0 {
		snapshot.SchemaVersion = SchemaVersion
	}
	if snapshot.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d", snapshot.SchemaVersion)
	}

	query := `
INSERT INTO snapshots (
  project_key, run_id, schema_version, ts_utc, status, passed, quick, total, errors,
  warnings, infos, suppressed, files, modules, edges, cycles, clusters, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_key, run_id) DO UPDATE SET
  schema_version=excluded.schema_version,
  ts_utc=excluded.ts_utc,
  status=excluded.status,
  passed=excluded.passed,
  quick=excluded.quick,
  total=excluded.total,
  errors=excluded.errors,
  warnings=excluded.warnings,
  infos=excluded.infos,
  suppressed=excluded.suppressed,
  files=excluded.files,
  modules=excluded.modules,
  edges=excluded.edges,
  cycles=excluded.cycles,
  clusters=excluded.clusters,
  duration_ms=excluded.duration_ms
`
	return s.withRetry("save snapshot", func() error {
		_, err := s.db.Exec(
			query,
			snapshot.ProjectKey,
			snapshot.RunID,
			snapshot.SchemaVersion,
			snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
			snapshot.Status,
			snapshot.Passed,
			snapshot.Quick,
			snapshot.Total,
			snapshot.Errors,
			snapshot.Warnings,
			snapshot.Infos,
			snapshot.Suppressed,
			snapshot.Files,
			snapshot.Modules,
			snapshot.Edges,
			snapshot.Cycles,
			snapshot.Clusters,
			snapshot.DurationMS,
		)
		return err
	})
}

const selectColumns = `
SELECT
  project_key, run_id, schema_version, ts_utc, status, passed, quick, total, errors,
  warnings, infos, suppressed, files, modules, edges, cycles, clusters, duration_ms
FROM snapshots
`

// Load returns the snapshots of a project at or after since, oldest first.
func (s *Store) Load(projectKey string, since time.Time) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := selectColumns + " WHERE project_key = ?"
	args := []any{projectKeyOrDefault(projectKey)}
	if !since.IsZero() {
		query += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY ts_utc ASC, run_id ASC"
	return s.query("load snapshots", query, args...)
}

// Latest returns the newest snapshot of a project. ok is false when the
// project has no history yet.
func (s *Store) Latest(projectKey string) (snapshot Snapshot, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := selectColumns + " WHERE project_key = ? ORDER BY ts_utc DESC, run_id DESC LIMIT 1"
	rows, err := s.query("load latest snapshot", query, projectKeyOrDefault(projectKey))
	if err != nil || len(rows) == 0 {
		return Snapshot{}, false, err
	}
	return rows[0], true, nil
}

func (s *Store) query(op, query string, args ...any) ([]Snapshot, error) {
	var rows *sql.Rows
	err := s.withRetry(op, func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var (
			tsRaw    string
			snapshot Snapshot
		)
		if err := rows.Scan(
			&snapshot.ProjectKey,
			&snapshot.RunID,
			&snapshot.SchemaVersion,
			&tsRaw,
			&snapshot.Status,
			&snapshot.Passed,
			&snapshot.Quick,
			&snapshot.Total,
			&snapshot.Errors,
			&snapshot.Warnings,
			&snapshot.Infos,
			&snapshot.Suppressed,
			&snapshot.Files,
			&snapshot.Modules,
			&snapshot.Edges,
			&snapshot.Cycles,
			&snapshot.Clusters,
			&snapshot.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot timestamp %q: %w", tsRaw, err)
		}
		snapshot.Timestamp = ts.UTC()
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func projectKeyOrDefault(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return defaultProject
	}
	return key
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
