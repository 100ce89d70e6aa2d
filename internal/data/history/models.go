package history

import (
	"time"

	"archguard/internal/engine/report"
)

// SchemaVersion is the newest history schema this build reads and writes.
const SchemaVersion = 2

// Snapshot is the stored summary of one validation run.
type Snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	ProjectKey    string    `json:"project_key"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
	Passed        bool      `json:"passed"`
	Quick         bool      `json:"quick"`
	Total         int       `json:"total"`
	Errors        int       `json:"errors"`
	Warnings      int       `json:"warnings"`
	Infos         int       `json:"infos"`
	Suppressed    int       `json:"suppressed"`
	Files         int       `json:"files"`
	Modules       int       `json:"modules"`
	Edges         int       `json:"edges"`
	Cycles        int       `json:"cycles"`
	Clusters      int       `json:"clusters"`
	DurationMS    int64     `json:"duration_ms"`
}

// FromReport summarises a finished run.
func FromReport(projectKey string, rep *report.ValidationReport) Snapshot {
	ts := rep.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Snapshot{
		SchemaVersion: SchemaVersion,
		ProjectKey:    projectKey,
		RunID:         rep.RunID,
		Timestamp:     ts.UTC(),
		Status:        string(rep.Status),
		Passed:        rep.Passed,
		Quick:         rep.Quick,
		Total:         rep.Counts.Total,
		Errors:        rep.Counts.BySeverity["error"],
		Warnings:      rep.Counts.BySeverity["warning"],
		Infos:         rep.Counts.BySeverity["info"],
		Suppressed:    rep.Counts.Suppressed,
		Files:         rep.Stats.Files,
		Modules:       rep.Stats.Modules,
		Edges:         rep.Stats.Edges,
		Cycles:        rep.Stats.Cycles,
		Clusters:      rep.Stats.Clusters,
		DurationMS:    rep.Duration.Milliseconds(),
	}
}

// Delta is the change from a previous snapshot to the current one.
type Delta struct {
	Since    time.Time `json:"since"`
	Total    int       `json:"total"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Infos    int       `json:"infos"`
	Files    int       `json:"files"`
	Modules  int       `json:"modules"`
	Cycles   int       `json:"cycles"`
	Clusters int       `json:"clusters"`
}

func Compare(prev, cur Snapshot) Delta {
	return Delta{
		Since:    prev.Timestamp,
		Total:    cur.Total - prev.Total,
		Errors:   cur.Errors - prev.Errors,
		Warnings: cur.Warnings - prev.Warnings,
		Infos:    cur.Infos - prev.Infos,
		Files:    cur.Files - prev.Files,
		Modules:  cur.Modules - prev.Modules,
		Cycles:   cur.Cycles - prev.Cycles,
		Clusters: cur.Clusters - prev.Clusters,
	}
}

// Improved reports whether the run has fewer violations than before.
func (d Delta) Improved() bool { return d.Total < 0 }
