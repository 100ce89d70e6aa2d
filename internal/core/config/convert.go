package config

import (
	"archguard/internal/engine/duplication"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/parser"
)

// LanguageOverrides maps [languages.<id>] onto the parser registry overrides.
func (c *Config) LanguageOverrides() map[string]parser.LanguageOverride {
	if len(c.Languages) == 0 {
		return nil
	}
	out := make(map[string]parser.LanguageOverride, len(c.Languages))
	for id, lang := range c.Languages {
		out[id] = parser.LanguageOverride{Enabled: lang.Enabled, Extensions: lang.Extensions}
	}
	return out
}

func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		TolerateErrors: c.Analysis.TolerateParseErrors,
		MaxFileBytes:   c.Analysis.MaxFileBytes,
	}
}

func (c *Config) GraphArchitecture() graph.Architecture {
	a := graph.Architecture{
		Order:           c.Architecture.Order,
		CompositionRoot: c.Architecture.CompositionRoot,
	}
	for _, l := range c.Architecture.Layers {
		a.Layers = append(a.Layers, graph.Layer{Name: l.Name, Paths: l.Paths})
	}
	for _, r := range c.Architecture.Rules {
		a.Rules = append(a.Rules, graph.AllowRule{Name: r.Name, From: r.From, Allow: r.Allow})
	}
	return a
}

func (c *Config) DuplicationConfig() duplication.Config {
	d := duplication.DefaultConfig()
	d.Window = c.Duplication.Window
	d.MinTokens = c.Duplication.MinTokens
	d.MinLines = c.Duplication.MinLines
	d.MaxBucket = c.Duplication.MaxBucket
	if c.Analysis.Workers > 0 {
		d.Workers = c.Analysis.Workers
	}
	return d
}
