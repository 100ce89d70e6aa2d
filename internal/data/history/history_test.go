package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archguard/internal/engine/report"
)

func TestStore_OpenInitializesSchemaAndSaveLoad(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := Snapshot{ProjectKey: "project-a", RunID: "run-1", Timestamp: base, Status: "violations", Total: 5, Errors: 2, Files: 8}
	rerun := Snapshot{ProjectKey: "project-a", RunID: "run-1", Timestamp: base, Status: "violations", Total: 7, Errors: 3, Files: 8}
	second := Snapshot{
		ProjectKey: "project-a",
		RunID:      "run-2",
		Timestamp:  base.Add(2 * time.Hour),
		Status:     "clean",
		Passed:     true,
		Quick:      true,
		Files:      9,
		Modules:    4,
		Edges:      6,
		DurationMS: 1250,
	}

	for _, s := range []Snapshot{first, rerun, second} {
		if err := store.Save(s); err != nil {
			t.Fatalf("save %s: %v", s.RunID, err)
		}
	}

	got, err := store.Load("project-a", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot after since filter, got %d", len(got))
	}
	if !got[0].Passed || !got[0].Quick || got[0].Edges != 6 || got[0].DurationMS != 1250 {
		t.Fatalf("expected fields to roundtrip, got %+v", got[0])
	}

	all, err := store.Load("project-a", time.Time{})
	if err != nil {
		t.Fatalf("load all snapshots: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 snapshots after rerun upsert, got %d", len(all))
	}
	if all[0].Total != 7 || all[0].Errors != 3 {
		t.Fatalf("expected upserted totals, got %+v", all[0])
	}
	if all[0].SchemaVersion != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, all[0].SchemaVersion)
	}
}

func TestStore_Latest(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, ok, err := store.Latest("project-a"); err != nil || ok {
		t.Fatalf("expected empty history, ok=%v err=%v", ok, err)
	}

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	for i, total := range []int{4, 9, 2} {
		s := Snapshot{ProjectKey: "project-a", Timestamp: base.Add(time.Duration(i) * time.Minute), Total: total}
		if err := store.Save(s); err != nil {
			t.Fatal(err)
		}
	}
	latest, ok, err := store.Latest("project-a")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.Total != 2 {
		t.Fatalf("expected newest snapshot total=2, got %d", latest.Total)
	}
	if latest.RunID == "" {
		t.Fatal("expected a generated run id")
	}
}

func TestStore_SaveRejectsUnknownSchemaVersion(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.Save(Snapshot{SchemaVersion: SchemaVersion + 1})
	if err == nil || !strings.Contains(err.Error(), "unsupported snapshot schema version") {
		t.Fatalf("expected schema version error, got %v", err)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var applied int
	if err := reopened.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != len(migrations) {
		t.Fatalf("expected %d migrations recorded once, got %d", len(migrations), applied)
	}
}

func TestFromReportAndCompare(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rep := &report.ValidationReport{
		RunID:     "run-x",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Status:    report.StatusViolations,
		Counts: report.Counts{
			Total:      6,
			BySeverity: map[string]int{"error": 1, "warning": 2, "info": 3},
			Suppressed: 2,
		},
		Stats: report.Stats{Files: 10, Modules: 3, Edges: 4, Cycles: 1, Clusters: 2},
	}
	cur := FromReport("project-a", rep)
	if cur.RunID != "run-x" || cur.Errors != 1 || cur.Warnings != 2 || cur.Infos != 3 {
		t.Fatalf("unexpected snapshot: %+v", cur)
	}
	if cur.DurationMS != 1500 || cur.Status != "violations" || !cur.Timestamp.Equal(started) {
		t.Fatalf("unexpected snapshot metadata: %+v", cur)
	}

	prev := Snapshot{Timestamp: started.Add(-time.Hour), Total: 9, Errors: 1, Warnings: 5, Files: 8, Cycles: 2}
	delta := Compare(prev, cur)
	if delta.Total != -3 || delta.Warnings != -3 || delta.Files != 2 || delta.Cycles != -1 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
	if !delta.Improved() {
		t.Fatal("expected fewer violations to count as improved")
	}
	if !delta.Since.Equal(prev.Timestamp) {
		t.Fatalf("expected since=%v, got %v", prev.Timestamp, delta.Since)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
	if IsCorruptError(nil) {
		t.Fatal("nil is not corrupt")
	}
}

func TestStore_ProjectIsolation(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	if err := store.Save(Snapshot{ProjectKey: "project-a", Timestamp: base, Modules: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(Snapshot{ProjectKey: "project-b", Timestamp: base, Modules: 2}); err != nil {
		t.Fatal(err)
	}

	aRows, err := store.Load("project-a", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(aRows) != 1 || aRows[0].Modules != 1 {
		t.Fatalf("unexpected project-a rows: %+v", aRows)
	}
	bRows, err := store.Load("project-b", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bRows) != 1 || bRows[0].Modules != 2 {
		t.Fatalf("unexpected project-b rows: %+v", bRows)
	}
}
