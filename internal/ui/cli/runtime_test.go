package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archguard/internal/engine/report"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{
		"-quick", "-format", "json,sarif", "-format", "text", "-rules", "a", "-rules", "b",
		"-workers", "3", "-log-format", "json", "proj",
	}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.quick)
	assert.Equal(t, stringList{"json,sarif", "text"}, opts.formats)
	assert.Equal(t, stringList{"a", "b"}, opts.rules)
	assert.Equal(t, 3, opts.workers)
	assert.Equal(t, "proj", opts.root)

	for _, args := range [][]string{
		{"-workers", "-1"},
		{"-log-format", "xml"},
		{"a", "b"},
		{"-rules", " "},
		{"-nope"},
	} {
		if _, err := parseOptions(args, io.Discard); err == nil {
			t.Errorf("parseOptions(%v) succeeded, want error", args)
		}
	}
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	assert.Equal(t, report.ExitPass, code)
	assert.True(t, strings.HasPrefix(out, "archguard "), out)
}

func TestRun_BadFlagsAreEngineErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "-log-format", "xml")
	assert.Equal(t, report.ExitEngineError, code)
	assert.Contains(t, stderr, "log-format")

	code, _, _ = runCLI(t, "-h")
	assert.Equal(t, report.ExitPass, code)
}

func TestRun_ExitCodes(t *testing.T) {
	cycle := writeProject(t, map[string]string{
		"go.mod": "module example.com/demo\n\ngo 1.22\n",
		"a/a.go": "package a\n\nimport \"example.com/demo/b\"\n\nfunc A() int { return b.B() }\n",
		"b/b.go": "package b\n\nimport \"example.com/demo/a\"\n\nfunc B() int { return a.A() }\n",
	})
	code, out, _ := runCLI(t, "-format", "json", cycle)
	assert.Equal(t, report.ExitFail, code)
	var rep report.ValidationReport
	require.NoError(t, jsoniter.Unmarshal([]byte(out), &rep))
	assert.False(t, rep.Passed)

	clean := writeProject(t, map[string]string{
		"go.mod": "module example.com/clean\n\ngo 1.22\n",
		"a/a.go": "package a\n\nfunc A() int { return 1 }\n",
	})
	code, _, _ = runCLI(t, clean)
	assert.Equal(t, report.ExitPass, code)
}

func TestRun_InvalidConfigIsEngineError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"archguard.toml": "version = 1\n[report]\nfail_on = \"fatal\"\n",
		"main.go":        "package main\n",
	})
	code, _, _ := runCLI(t, root)
	assert.Equal(t, report.ExitEngineError, code)

	code, _, _ = runCLI(t, "-config", filepath.Join(root, "missing.toml"), root)
	assert.Equal(t, report.ExitEngineError, code)
}

func TestLoadConfig(t *testing.T) {
	root := writeProject(t, map[string]string{
		"archguard.toml": "version = 1\n[report]\nfail_on = \"warning\"\n",
	})
	cfg, path, err := loadConfig("", root, "/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "archguard.toml"), path)
	assert.Equal(t, "warning", cfg.Report.FailOn)

	cfg, path, err = loadConfig("", "", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, "error", cfg.Report.FailOn)

	_, _, err = loadConfig(filepath.Join(root, "nope.toml"), "", root)
	require.Error(t, err)
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, colorEnabled(&bytes.Buffer{}))
	t.Setenv("NO_COLOR", "1")
	assert.False(t, colorEnabled(os.Stdout))
}

func TestObservabilityServer_Handlers(t *testing.T) {
	rep := &report.ValidationReport{RunID: "run-1", Status: report.StatusViolations}
	srv := httptest.NewServer(NewObservabilityServer("", func() *report.ValidationReport { return rep }).handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status healthStatus
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "up", status.Status)
	assert.Equal(t, "run-1", status.LastRun)
	require.NotNil(t, status.Passed)
	assert.False(t, *status.Passed)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestObservabilityServer_StartStop(t *testing.T) {
	srv := NewObservabilityServer("127.0.0.1:0", nil)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))

	bad := NewObservabilityServer("256.0.0.1:bad", nil)
	require.Error(t, bad.Start(context.Background()))
}

func TestProgressReporter(t *testing.T) {
	var nilReporter *progressReporter
	nilReporter.Update(1, 2, "a.go")
	nilReporter.Reset()

	var buf bytes.Buffer
	p := newProgressReporter(&buf)
	p.Update(1, 2, "a.go")
	p.Update(2, 2, "b.go")
	p.Reset()
	p.Update(1, 5, "c.go")
	assert.NotEmpty(t, buf.String())
}

func TestConfigureLogging_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "archguard.log")
	cleanup, err := configureLogging(cliOptions{logFile: path, logFormat: "json"}, io.Discard)
	require.NoError(t, err)
	defer cleanup()
	defer func() { _, _ = configureLogging(cliOptions{logFormat: "text"}, io.Discard) }()

	slog.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
