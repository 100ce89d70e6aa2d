package config

import (
	"fmt"
	"net"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"archguard/internal/core/config/helpers"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/parser"
	"archguard/internal/engine/rules"
	"archguard/internal/shared/util"
)

var knownFormats = []string{"text", "json", "markdown", "md", "sarif"}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validatePaths(cfg *Config) error {
	for i, dir := range cfg.Paths.RulesDirs {
		if dir == "" {
			return fmt.Errorf("paths.rules_dirs[%d] must not be empty", i)
		}
	}
	for i, dir := range cfg.Exclude.Dirs {
		if dir == "" {
			return fmt.Errorf("exclude.dirs[%d] must not be empty", i)
		}
	}
	for i, pattern := range cfg.Exclude.Files {
		if pattern == "" {
			return fmt.Errorf("exclude.files[%d] must not be empty", i)
		}
		if _, err := glob.Compile(util.NormalizePatternPath(pattern), '/'); err != nil {
			return fmt.Errorf("exclude.files[%d]: invalid pattern %q: %w", i, pattern, err)
		}
	}
	return nil
}

func validateLanguages(cfg *Config) error {
	if _, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides()); err != nil {
		return fmt.Errorf("languages: %w", err)
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	a := cfg.Analysis
	if a.Workers < 0 {
		return fmt.Errorf("analysis.workers must be >= 0, got %d", a.Workers)
	}
	if a.Phase2Deadline < 0 {
		return fmt.Errorf("analysis.phase2_deadline must be positive, got %s", a.Phase2Deadline)
	}
	if a.CacheSize < 0 {
		return fmt.Errorf("analysis.cache_size must be >= 0, got %d", a.CacheSize)
	}
	if a.MaxFileBytes < 0 {
		return fmt.Errorf("analysis.max_file_bytes must be >= 0, got %d", a.MaxFileBytes)
	}
	return nil
}

func validateDuplication(cfg *Config) error {
	d := cfg.Duplication
	for _, f := range []struct {
		name  string
		value int
	}{
		{"window", d.Window},
		{"min_tokens", d.MinTokens},
		{"min_lines", d.MinLines},
		{"max_bucket", d.MaxBucket},
	} {
		if f.value < 1 {
			return fmt.Errorf("duplication.%s must be >= 1, got %d", f.name, f.value)
		}
	}
	if d.MinTokens < d.Window {
		return fmt.Errorf("duplication.min_tokens (%d) must be >= duplication.window (%d)", d.MinTokens, d.Window)
	}
	return nil
}

func validateThresholds(cfg *Config) error {
	if err := cfg.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds.%w", err)
	}
	return nil
}

// validateArchitecture checks the layering block beyond what the layer
// policy itself enforces: every layer has paths and layers do not claim
// overlapping modules.
func validateArchitecture(cfg *Config) error {
	arch := cfg.Architecture
	if arch.CompositionRoot != "" && helpers.HasWildcard(arch.CompositionRoot) {
		return fmt.Errorf("architecture.composition_root %q must name one module, not a pattern", arch.CompositionRoot)
	}
	if len(arch.Layers) == 0 {
		if len(arch.Order) > 0 || len(arch.Rules) > 0 {
			return fmt.Errorf("architecture.order and architecture.rules require at least one layer")
		}
		return nil
	}

	patternOwner := make(map[string]string)
	literalPaths := make(map[string]string)
	wildcardPatterns := make(map[string]string)

	for i, layer := range arch.Layers {
		layerRef := fmt.Sprintf("architecture.layers[%d]", i)
		if strings.TrimSpace(layer.Name) == "" {
			return fmt.Errorf("%s.name must not be empty", layerRef)
		}
		if len(layer.Paths) == 0 {
			return fmt.Errorf("%s (%s) must define at least one path pattern", layerRef, layer.Name)
		}

		for _, raw := range layer.Paths {
			p := util.NormalizePatternPath(raw)
			if p == "" || p == "." {
				return fmt.Errorf("layer %q has empty/invalid path pattern", layer.Name)
			}
			if owner, ok := patternOwner[p]; ok && owner != layer.Name {
				return fmt.Errorf("layer path pattern %q is declared in both %q and %q", p, owner, layer.Name)
			}
			patternOwner[p] = layer.Name

			if helpers.HasWildcard(p) {
				for existing, owner := range literalPaths {
					if owner == layer.Name {
						continue
					}
					if matched, _ := path.Match(p, existing); matched {
						return fmt.Errorf("layer %q path %q overlaps with layer %q path %q", layer.Name, p, owner, existing)
					}
				}
				for existing, owner := range wildcardPatterns {
					if owner == layer.Name {
						continue
					}
					if helpers.WildcardPatternsOverlap(p, existing) {
						return fmt.Errorf("layer %q path %q overlaps with layer %q path %q", layer.Name, p, owner, existing)
					}
				}
				wildcardPatterns[p] = layer.Name
				continue
			}

			for existing, owner := range literalPaths {
				if owner == layer.Name {
					continue
				}
				if helpers.IsPathOverlap(existing, p) {
					return fmt.Errorf("layer %q path %q overlaps with layer %q path %q", layer.Name, p, owner, existing)
				}
			}
			for existing, owner := range wildcardPatterns {
				if owner == layer.Name {
					continue
				}
				if matched, _ := path.Match(existing, p); matched {
					return fmt.Errorf("layer %q path %q overlaps with layer %q path %q", layer.Name, p, owner, existing)
				}
			}
			literalPaths[p] = layer.Name
		}
	}

	ruleNames := make(map[string]bool, len(arch.Rules))
	ruleByFrom := make(map[string]string, len(arch.Rules))
	for i, rule := range arch.Rules {
		name := rule.Name
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("architecture.rules[%d].name must not be empty", i)
		}
		if ruleNames[name] {
			return fmt.Errorf("duplicate architecture rule name: %q", name)
		}
		ruleNames[name] = true
		if previous, exists := ruleByFrom[rule.From]; exists {
			return fmt.Errorf("architecture layer %q has multiple rules (%q, %q); define exactly one", rule.From, previous, name)
		}
		ruleByFrom[rule.From] = name

		seen := make(map[string]bool, len(rule.Allow))
		for _, to := range rule.Allow {
			if seen[to] {
				return fmt.Errorf("architecture rule %q repeats allowed layer %q", name, to)
			}
			seen[to] = true
		}
	}

	if _, err := graph.NewLayerPolicy(cfg.GraphArchitecture()); err != nil {
		return fmt.Errorf("architecture: %w", err)
	}
	return nil
}

func validateReport(cfg *Config) error {
	r := cfg.Report
	if _, err := rules.ParseSeverity(r.MinSeverity); err != nil {
		return fmt.Errorf("report.min_severity: %w", err)
	}
	if _, err := rules.ParseSeverity(r.FailOn); err != nil {
		return fmt.Errorf("report.fail_on: %w", err)
	}
	for _, f := range r.Formats {
		if !slices.Contains(knownFormats, f) {
			return fmt.Errorf("report.formats: unknown format %q", f)
		}
	}
	for i, id := range r.SuppressRules {
		if id == "" {
			return fmt.Errorf("report.suppress_rules[%d] must not be empty", i)
		}
	}
	for i, pattern := range r.SuppressPaths {
		if pattern == "" {
			return fmt.Errorf("report.suppress_paths[%d] must not be empty", i)
		}
		if _, err := glob.Compile(util.NormalizePatternPath(pattern), '/'); err != nil {
			return fmt.Errorf("report.suppress_paths[%d]: invalid pattern %q: %w", i, pattern, err)
		}
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path must not be empty when history.enabled=true")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	o := cfg.Observability
	if o.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			return fmt.Errorf("observability.metrics_addr %q: %w", o.MetricsAddr, err)
		}
	}
	if strings.ContainsAny(o.OTLPEndpoint, " \t\n") {
		return fmt.Errorf("observability.otlp_endpoint must not contain whitespace")
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.MinInterval < 0 {
		return fmt.Errorf("watch.min_interval must not be negative")
	}
	return nil
}
