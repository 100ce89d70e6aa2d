package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies ARCHGUARD_[SECTION]_[KEY] environment variables,
// e.g. ARCHGUARD_ANALYSIS_WORKERS=8. Unparsable values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.Root, "ARCHGUARD_PATHS_ROOT")
	setEnvString(&cfg.Paths.StateDir, "ARCHGUARD_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.ThresholdsFile, "ARCHGUARD_PATHS_THRESHOLDS_FILE")

	setEnvInt(&cfg.Analysis.Workers, "ARCHGUARD_ANALYSIS_WORKERS")
	setEnvDuration(&cfg.Analysis.Phase2Deadline, "ARCHGUARD_ANALYSIS_PHASE2_DEADLINE")
	setEnvInt(&cfg.Analysis.CacheSize, "ARCHGUARD_ANALYSIS_CACHE_SIZE")

	setEnvString(&cfg.Report.FailOn, "ARCHGUARD_REPORT_FAIL_ON")
	setEnvString(&cfg.Report.MinSeverity, "ARCHGUARD_REPORT_MIN_SEVERITY")
	setEnvString(&cfg.Report.OutputDir, "ARCHGUARD_REPORT_OUTPUT_DIR")

	setEnvBool(&cfg.History.Enabled, "ARCHGUARD_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "ARCHGUARD_HISTORY_PATH")

	setEnvString(&cfg.Observability.MetricsAddr, "ARCHGUARD_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "ARCHGUARD_OBSERVABILITY_OTLP_ENDPOINT")

	setEnvDuration(&cfg.Watch.Debounce, "ARCHGUARD_WATCH_DEBOUNCE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.TrimSpace(val)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(val))); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
