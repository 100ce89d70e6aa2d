package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"archguard/internal/core/config"
	"archguard/internal/shared/version"
)

type cliOptions struct {
	configPath string
	rules      stringList
	quick      bool
	failOn     string
	formats    stringList
	outDir     string
	watch      bool
	progress   bool
	workers    int
	verbose    bool
	logFile    string
	logFormat  string
	version    bool
	root       string
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("value must not be empty")
	}
	*s = append(*s, v)
	return nil
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet(version.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [flags] [root]\n\n", version.Name)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default ./"+config.DefaultFile+" when present)")
	fs.Var(&opts.rules, "rules", "Extra rule file or directory (repeatable)")
	fs.BoolVar(&opts.quick, "quick", false, "Run only rules marked quick")
	fs.StringVar(&opts.failOn, "fail-on", "", "Lowest severity that fails the run: error, warning or info")
	fs.Var(&opts.formats, "format", "Output format: text, json, markdown, sarif (comma separated or repeatable)")
	fs.StringVar(&opts.outDir, "out", "", "Write reports into this directory instead of stdout")
	fs.BoolVar(&opts.watch, "watch", false, "Re-run on every source or config change")
	fs.BoolVar(&opts.progress, "progress", false, "Show a progress bar on stderr")
	fs.IntVar(&opts.workers, "workers", 0, "Parallel workers (default: number of CPUs)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.StringVar(&opts.logFile, "log-file", "", "Write logs to this file with rotation")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		opts.root = rest[0]
	default:
		return cliOptions{}, fmt.Errorf("expected at most one root argument, got %d", len(rest))
	}
	if opts.workers < 0 {
		return cliOptions{}, fmt.Errorf("-workers must not be negative")
	}
	switch opts.logFormat {
	case "text", "json":
	default:
		return cliOptions{}, fmt.Errorf("-log-format must be text or json, got %q", opts.logFormat)
	}
	return opts, nil
}
