// Package ports declares the seams between the run orchestration and the
// adapters it drives.
package ports

import (
	"context"

	"archguard/internal/data/history"
	"archguard/internal/engine/report"
	"archguard/internal/engine/router"
	"archguard/internal/engine/rules"
)

// RuleEngine runs validations. *router.Engine satisfies it.
type RuleEngine interface {
	Run(ctx context.Context, req router.RunRequest) (*report.ValidationReport, error)
	Registry() *rules.Registry
	SetRegistry(reg *rules.Registry) *rules.Registry
	Close()
}

// HistoryStore persists run snapshots for trend comparison.
type HistoryStore interface {
	Save(snapshot history.Snapshot) error
	Latest(projectKey string) (history.Snapshot, bool, error)
	Close() error
}

// FileScanner lists the files a run validates, as absolute paths, and
// filters single paths reported by the file watcher.
type FileScanner interface {
	Scan(root string) ([]string, error)
	Accept(root, path string) bool
}

var (
	_ RuleEngine   = (*router.Engine)(nil)
	_ HistoryStore = (*history.Store)(nil)
)
