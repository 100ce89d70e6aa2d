package version

// Name is the tool name reported in outputs.
const Name = "archguard"

// Version is overridden at build time with -ldflags "-X archguard/internal/shared/version.Version=...".
var Version = "0.4.0"

// RuleSchema is the only rule definition schema version the loader accepts.
const RuleSchema = 1
