package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"archguard/internal/data/history"
	"archguard/internal/engine/report"
	"archguard/internal/engine/router"
	"archguard/internal/engine/rules"
	"archguard/internal/shared/util"
	"archguard/internal/ui/report/formats"
)

// ReportBaseName is the file name, without extension, of written reports.
const ReportBaseName = "archguard-report"

// Validate scans the project, runs every applicable rule, stores a history
// snapshot and writes the configured outputs. The returned error is set only
// when the run itself could not complete; a report with violations is not an
// error.
func (a *App) Validate(ctx context.Context) (*report.ValidationReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validate(ctx)
}

func (a *App) validate(ctx context.Context) (*report.ValidationReport, error) {
	if a.engine == nil {
		return nil, fmt.Errorf("app is closed")
	}
	root := a.paths.ProjectRoot
	files, err := a.scanner.Scan(root)
	if err != nil {
		return nil, err
	}
	slog.Debug("scan complete", "root", root, "files", len(files))

	minSeverity, err := rules.ParseSeverity(a.cfg.Report.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("min_severity: %w", err)
	}
	rep, err := a.engine.Run(ctx, router.RunRequest{
		Root:   root,
		Files:  files,
		Quick:  a.opts.Quick,
		FailOn: a.failOn,
		Report: report.Options{
			FailOn:        a.failOn,
			MinSeverity:   minSeverity,
			SuppressRules: a.cfg.Report.SuppressRules,
			SuppressPaths: a.cfg.Report.SuppressPaths,
		},
		Progress: a.opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	delta := a.recordHistory(rep)
	if err := a.writeOutputs(rep, delta); err != nil {
		return rep, err
	}
	slog.Info("validation finished",
		"status", rep.Status,
		"violations", rep.Counts.Total,
		"files", rep.Stats.Files,
		"duration", rep.Duration)
	return rep, nil
}

// recordHistory stores the run and returns the change against the previous
// stored run of the project, if any. Store failures only log.
func (a *App) recordHistory(rep *report.ValidationReport) *history.Delta {
	if a.history == nil {
		return nil
	}
	key := a.paths.ProjectRoot
	prev, ok, err := a.history.Latest(key)
	if err != nil {
		slog.Warn("history lookup failed", "error", err)
		ok = false
	}
	cur := history.FromReport(key, rep)
	if err := a.history.Save(cur); err != nil {
		slog.Warn("history save failed", "error", err)
	}
	if !ok {
		return nil
	}
	delta := history.Compare(prev, cur)
	return &delta
}

// writeOutputs renders every configured format. Without an output directory
// the formats go to stdout in order; with one each format is written to a
// file and stdout gets the text summary.
func (a *App) writeOutputs(rep *report.ValidationReport, delta *history.Delta) error {
	opts := formats.Options{
		Color:         a.opts.Color,
		Delta:         delta,
		ProjectName:   projectName(rep.Root),
		CollapseAfter: 50,
	}
	if a.paths.OutputDir == "" {
		for i, f := range a.formats {
			if i > 0 {
				fmt.Fprintln(a.opts.Stdout)
			}
			if err := formats.Render(a.opts.Stdout, f, rep, opts); err != nil {
				return fmt.Errorf("render %s: %w", f, err)
			}
		}
		return nil
	}

	fileOpts := opts
	fileOpts.Color = false
	for _, f := range a.formats {
		var buf bytes.Buffer
		if err := formats.Render(&buf, f, rep, fileOpts); err != nil {
			return fmt.Errorf("render %s: %w", f, err)
		}
		path := filepath.Join(a.paths.OutputDir, ReportBaseName+f.Extension())
		if err := util.WriteFileWithDirs(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s report: %w", f, err)
		}
		slog.Info("report written", "format", f, "path", path)
	}
	return formats.Render(a.opts.Stdout, formats.FormatText, rep, opts)
}
