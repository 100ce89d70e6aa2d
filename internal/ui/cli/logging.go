package cli

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// configureLogging installs the default slog handler. Logs go to stderr,
// or to a rotated file with -log-file; stdout carries only the report.
func configureLogging(opts cliOptions, stderr io.Writer) (func(), error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	out := stderr
	closeFn := func() {}
	if opts.logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out = rotator
		closeFn = func() { _ = rotator.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.logFormat == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}
