package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	domainerrors "archguard/internal/core/errors"
	"archguard/internal/engine/duplication"
	"archguard/internal/shared/version"
)

// Load decodes, defaults and validates one configuration file. Unknown keys
// are rejected so that typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := finish(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOptional loads path when it exists and returns the defaults otherwise.
func LoadOptional(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Default is the configuration used without a config file.
func Default() *Config {
	var cfg Config
	if err := finish(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return &cfg
}

// LoadThresholdFile reads a standalone threshold document.
func LoadThresholdFile(path string) (Thresholds, error) {
	var tf Thresholds
	meta, err := toml.DecodeFile(path, &tf)
	if err != nil {
		return Thresholds{}, fmt.Errorf("decode thresholds %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Thresholds{}, fmt.Errorf("thresholds %s: unknown key %s", path, undecoded[0].String())
	}
	if err := tf.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return tf, nil
}

func finish(cfg *Config) error {
	applyDefaults(cfg)
	normalize(cfg)
	ApplyEnvOverrides(cfg)

	for _, validate := range []func(*Config) error{
		validateVersion,
		validatePaths,
		validateLanguages,
		validateAnalysis,
		validateDuplication,
		validateThresholds,
		validateArchitecture,
		validateReport,
		validateHistory,
		validateObservability,
		validateWatch,
	} {
		if err := validate(cfg); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid configuration")
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".archguard"
	}

	if cfg.Analysis.Phase2Deadline == 0 {
		cfg.Analysis.Phase2Deadline = 30 * time.Second
	}
	if cfg.Analysis.CacheSize == 0 {
		cfg.Analysis.CacheSize = 4096
	}

	dup := duplication.DefaultConfig()
	if cfg.Duplication.Window == 0 {
		cfg.Duplication.Window = dup.Window
	}
	if cfg.Duplication.MinTokens == 0 {
		cfg.Duplication.MinTokens = dup.MinTokens
	}
	if cfg.Duplication.MinLines == 0 {
		cfg.Duplication.MinLines = dup.MinLines
	}
	if cfg.Duplication.MaxBucket == 0 {
		cfg.Duplication.MaxBucket = dup.MaxBucket
	}

	if strings.TrimSpace(cfg.Report.MinSeverity) == "" {
		cfg.Report.MinSeverity = "info"
	}
	if strings.TrimSpace(cfg.Report.FailOn) == "" {
		cfg.Report.FailOn = "error"
	}
	if len(cfg.Report.Formats) == 0 {
		cfg.Report.Formats = []string{"text"}
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "history.db"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = version.Name
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.MinInterval == 0 {
		cfg.Watch.MinInterval = 2 * time.Second
	}
}

func normalize(cfg *Config) {
	cfg.Paths.Root = strings.TrimSpace(cfg.Paths.Root)
	cfg.Paths.ThresholdsFile = strings.TrimSpace(cfg.Paths.ThresholdsFile)
	cfg.Paths.RulesDirs = trimAll(cfg.Paths.RulesDirs)
	cfg.Exclude.Dirs = trimAll(cfg.Exclude.Dirs)
	cfg.Exclude.Files = trimAll(cfg.Exclude.Files)
	cfg.Architecture.CompositionRoot = strings.TrimSpace(cfg.Architecture.CompositionRoot)
	cfg.Report.MinSeverity = strings.ToLower(strings.TrimSpace(cfg.Report.MinSeverity))
	cfg.Report.FailOn = strings.ToLower(strings.TrimSpace(cfg.Report.FailOn))
	cfg.Report.SuppressRules = trimAll(cfg.Report.SuppressRules)
	cfg.Report.SuppressPaths = trimAll(cfg.Report.SuppressPaths)
	cfg.Observability.MetricsAddr = strings.TrimSpace(cfg.Observability.MetricsAddr)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)

	formats := make([]string, 0, len(cfg.Report.Formats))
	for _, f := range cfg.Report.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			formats = append(formats, f)
		}
	}
	cfg.Report.Formats = formats
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
