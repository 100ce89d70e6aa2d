// Package config loads archguard.toml: the project root, rule directories,
// language overrides, analysis limits, layering policy and report options.
package config

import (
	"time"

	"archguard/internal/engine/complexity"
)

// DefaultFile is looked up in the project root when no -config flag is given.
const DefaultFile = "archguard.toml"

type Config struct {
	Version       int                 `toml:"version"`
	Paths         Paths               `toml:"paths"`
	Languages     map[string]Language `toml:"languages"`
	Exclude       Exclude             `toml:"exclude"`
	Analysis      Analysis            `toml:"analysis"`
	Duplication   Duplication         `toml:"duplication"`
	Thresholds    Thresholds          `toml:"thresholds"`
	Architecture  Architecture        `toml:"architecture"`
	Report        Report              `toml:"report"`
	History       History             `toml:"history"`
	Observability Observability       `toml:"observability"`
	Watch         Watch               `toml:"watch"`
}

type Paths struct {
	Root           string   `toml:"root"`
	RulesDirs      []string `toml:"rules_dirs"`
	ThresholdsFile string   `toml:"thresholds_file"`
	StateDir       string   `toml:"state_dir"`
}

type Language struct {
	Enabled    *bool    `toml:"enabled"`
	Extensions []string `toml:"extensions"`
}

type Exclude struct {
	Dirs             []string `toml:"dirs"`
	Files            []string `toml:"files"`
	RespectGitignore *bool    `toml:"respect_gitignore"`
}

type Analysis struct {
	Workers             int           `toml:"workers"`
	Phase2Deadline      time.Duration `toml:"phase2_deadline"`
	CacheSize           int           `toml:"cache_size"`
	TolerateParseErrors bool          `toml:"tolerate_parse_errors"`
	MaxFileBytes        int           `toml:"max_file_bytes"`
}

type Duplication struct {
	Window    int `toml:"window"`
	MinTokens int `toml:"min_tokens"`
	MinLines  int `toml:"min_lines"`
	MaxBucket int `toml:"max_bucket"`
}

// Thresholds are project overrides layered over the threshold file.
type Thresholds = complexity.ThresholdFile

type Architecture struct {
	CompositionRoot string      `toml:"composition_root"`
	Order           []string    `toml:"order"`
	Layers          []Layer     `toml:"layers"`
	Rules           []LayerRule `toml:"rules"`
}

type Layer struct {
	Name  string   `toml:"name"`
	Paths []string `toml:"paths"`
}

type LayerRule struct {
	Name  string   `toml:"name"`
	From  string   `toml:"from"`
	Allow []string `toml:"allow"`
}

type Report struct {
	MinSeverity   string   `toml:"min_severity"`
	FailOn        string   `toml:"fail_on"`
	SuppressRules []string `toml:"suppress_rules"`
	SuppressPaths []string `toml:"suppress_paths"`
	Formats       []string `toml:"formats"`
	OutputDir     string   `toml:"output_dir"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

type Watch struct {
	Debounce    time.Duration `toml:"debounce"`
	MinInterval time.Duration `toml:"min_interval"`
}

// GitignoreEnabled defaults to true when unset.
func (e Exclude) GitignoreEnabled() bool {
	return e.RespectGitignore == nil || *e.RespectGitignore
}
