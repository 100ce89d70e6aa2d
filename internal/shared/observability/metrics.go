package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archguard_parsing_seconds",
		Help:    "Time spent parsing a source file into its structural tree.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	FilesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archguard_files_analyzed_total",
		Help: "Files processed by Phase 1, by outcome (parsed, cached, unparsable).",
	}, []string{"outcome"})

	UnitCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archguard_unit_cache_lookups_total",
		Help: "Source unit cache lookups by result (hit, miss, discarded).",
	}, []string{"result"})

	RuleExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archguard_rule_executions_total",
		Help: "Rule evaluations by phase.",
	}, []string{"phase"})

	RuleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archguard_rule_failures_total",
		Help: "Rule evaluations that panicked or returned an error, by rule id.",
	}, []string{"rule"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archguard_phase_seconds",
		Help:    "Time spent per engine phase (phase1, reduce, phase2).",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	DegradedRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archguard_degraded_runs_total",
		Help: "Runs whose Phase 2 hit the soft deadline.",
	})

	DuplicateClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archguard_duplicate_clusters",
		Help: "Duplicate clusters found by the last run.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archguard_graph_nodes_total",
		Help: "Total number of modules in the dependency graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archguard_graph_edges_total",
		Help: "Total number of edges in the dependency graph.",
	})

	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archguard_violations_total",
		Help: "Violations reported, by severity.",
	}, []string{"severity"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archguard_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
