package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "version = 1\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Analysis.Phase2Deadline != 30*time.Second {
		t.Fatalf("expected 30s phase2 deadline, got %s", cfg.Analysis.Phase2Deadline)
	}
	if cfg.Analysis.CacheSize != 4096 {
		t.Fatalf("expected cache size 4096, got %d", cfg.Analysis.CacheSize)
	}
	if cfg.Duplication.Window != 25 || cfg.Duplication.MinTokens != 50 || cfg.Duplication.MinLines != 5 || cfg.Duplication.MaxBucket != 64 {
		t.Fatalf("unexpected duplication defaults: %+v", cfg.Duplication)
	}
	if cfg.Report.FailOn != "error" || cfg.Report.MinSeverity != "info" {
		t.Fatalf("unexpected report defaults: %+v", cfg.Report)
	}
	if len(cfg.Report.Formats) != 1 || cfg.Report.Formats[0] != "text" {
		t.Fatalf("expected text format default, got %v", cfg.Report.Formats)
	}
	if !cfg.Exclude.GitignoreEnabled() {
		t.Fatal("expected gitignore to be respected by default")
	}
	if cfg.Paths.StateDir != ".archguard" || cfg.History.Path != "history.db" {
		t.Fatalf("unexpected path defaults: %+v %+v", cfg.Paths, cfg.History)
	}
	if cfg.Observability.ServiceName != "archguard" {
		t.Fatalf("unexpected service name %q", cfg.Observability.ServiceName)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond || cfg.Watch.MinInterval != 2*time.Second {
		t.Fatalf("unexpected watch defaults: %+v", cfg.Watch)
	}
}

func TestLoad_FullDocument(t *testing.T) {
	body := `
version = 1

[paths]
root = "."
rules_dirs = [".archguard/rules", " policy "]
thresholds_file = "thresholds.toml"

[languages.python]
enabled = false

[languages.javascript]
extensions = [".js", ".es6"]

[exclude]
dirs = ["vendor", "node_modules"]
files = ["**/*.gen.go"]
respect_gitignore = false

[analysis]
workers = 3
phase2_deadline = "10s"
cache_size = 128
tolerate_parse_errors = true
max_file_bytes = 1048576

[duplication]
window = 30
min_tokens = 60

[thresholds]
max_cyclomatic = 12

[thresholds.languages.go]
max_parameters = 6

[architecture]
composition_root = "cmd/shop"
order = ["domain", "app", "infra"]

[[architecture.layers]]
name = "domain"
paths = ["internal/domain"]

[[architecture.layers]]
name = "app"
paths = ["internal/app"]

[[architecture.layers]]
name = "infra"
paths = ["internal/infra/*"]

[[architecture.rules]]
name = "app-deps"
from = "app"
allow = ["domain"]

[report]
fail_on = "WARNING"
suppress_rules = ["HYG001"]
suppress_paths = ["legacy/**"]
formats = ["text", "SARIF"]
output_dir = "reports"

[history]
enabled = true

[observability]
metrics_addr = "127.0.0.1:9464"

[watch]
debounce = "250ms"
`
	cfg, err := Load(writeConfig(t, t.TempDir(), body))
	require.NoError(t, err)

	assert.Equal(t, []string{".archguard/rules", "policy"}, cfg.Paths.RulesDirs)
	assert.False(t, cfg.Exclude.GitignoreEnabled())
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.Equal(t, 10*time.Second, cfg.Analysis.Phase2Deadline)
	assert.True(t, cfg.Analysis.TolerateParseErrors)
	assert.Equal(t, 30, cfg.Duplication.Window)
	assert.Equal(t, 5, cfg.Duplication.MinLines)
	require.NotNil(t, cfg.Thresholds.MaxCyclomatic)
	assert.Equal(t, 12, *cfg.Thresholds.MaxCyclomatic)
	require.NotNil(t, cfg.Thresholds.Languages["go"].MaxParameters)
	assert.Equal(t, "warning", cfg.Report.FailOn)
	assert.Equal(t, []string{"text", "sarif"}, cfg.Report.Formats)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)

	overrides := cfg.LanguageOverrides()
	require.NotNil(t, overrides["python"].Enabled)
	assert.False(t, *overrides["python"].Enabled)
	assert.Equal(t, []string{".js", ".es6"}, overrides["javascript"].Extensions)

	arch := cfg.GraphArchitecture()
	assert.Equal(t, "cmd/shop", arch.CompositionRoot)
	require.Len(t, arch.Layers, 3)
	require.Len(t, arch.Rules, 1)
	assert.Equal(t, []string{"domain"}, arch.Rules[0].Allow)

	dup := cfg.DuplicationConfig()
	assert.Equal(t, 30, dup.Window)
	assert.Equal(t, 3, dup.Workers)

	opts := cfg.ParserOptions()
	assert.True(t, opts.TolerateErrors)
	assert.Equal(t, 1048576, opts.MaxFileBytes)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, t.TempDir(), "version = 1\n[analysis]\nworkerz = 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.workerz")
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"version", "version = 2", "unsupported config version 2"},
		{"empty rules dir", "[paths]\nrules_dirs = [\"\"]", "paths.rules_dirs[0]"},
		{"unknown language", "[languages.cobol]\nenabled = true", "languages:"},
		{"negative workers", "[analysis]\nworkers = -1", "analysis.workers"},
		{"min tokens below window", "[duplication]\nwindow = 40\nmin_tokens = 20", "duplication.min_tokens"},
		{"negative threshold", "[thresholds]\nmax_nesting = -1", "thresholds.max_nesting"},
		{"wildcard composition root", "[architecture]\ncomposition_root = \"cmd/*\"", "composition_root"},
		{"order without layers", "[architecture]\norder = [\"domain\"]", "require at least one layer"},
		{"layer without paths", "[[architecture.layers]]\nname = \"domain\"", "must define at least one path"},
		{"overlapping layers", "[[architecture.layers]]\nname = \"a\"\npaths = [\"internal\"]\n[[architecture.layers]]\nname = \"b\"\npaths = [\"internal/x\"]", "overlaps"},
		{"rule unknown layer", "[[architecture.layers]]\nname = \"a\"\npaths = [\"a\"]\n[[architecture.rules]]\nname = \"r\"\nfrom = \"zzz\"\nallow = [\"a\"]", "architecture:"},
		{"duplicate rule from", "[[architecture.layers]]\nname = \"a\"\npaths = [\"a\"]\n[[architecture.rules]]\nname = \"r1\"\nfrom = \"a\"\n[[architecture.rules]]\nname = \"r2\"\nfrom = \"a\"", "multiple rules"},
		{"bad fail_on", "[report]\nfail_on = \"fatal\"", "report.fail_on"},
		{"bad format", "[report]\nformats = [\"html\"]", "unknown format \"html\""},
		{"bad metrics addr", "[observability]\nmetrics_addr = \"9464\"", "observability.metrics_addr"},
		{"negative debounce", "[watch]\ndebounce = \"-1s\"", "watch.debounce"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tc.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, found, err := LoadOptional(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, cfg.Version)

	writeConfig(t, dir, "[analysis]\nworkers = 2\n")
	cfg, found, err = LoadOptional(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, cfg.Analysis.Workers)

	writeConfig(t, dir, "version = 9\n")
	_, _, err = LoadOptional(filepath.Join(dir, DefaultFile))
	require.Error(t, err)
}

func TestLoadThresholdFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_cyclomatic = 15\n[languages.python]\nmax_nesting = 3\n"), 0o644))

	tf, err := LoadThresholdFile(path)
	require.NoError(t, err)
	require.NotNil(t, tf.MaxCyclomatic)
	assert.Equal(t, 15, *tf.MaxCyclomatic)
	assert.Equal(t, 3, *tf.Languages["python"].MaxNesting)

	require.NoError(t, os.WriteFile(path, []byte("max_params = 3\n"), 0o644))
	_, err = LoadThresholdFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key max_params")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ARCHGUARD_ANALYSIS_WORKERS", "7")
	t.Setenv("ARCHGUARD_HISTORY_ENABLED", "true")
	t.Setenv("ARCHGUARD_ANALYSIS_PHASE2_DEADLINE", "5s")
	t.Setenv("ARCHGUARD_ANALYSIS_CACHE_SIZE", "not-a-number")

	cfg := Default()
	assert.Equal(t, 7, cfg.Analysis.Workers)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Analysis.Phase2Deadline)
	assert.Equal(t, 4096, cfg.Analysis.CacheSize)
}
