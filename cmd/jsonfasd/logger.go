package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
)

type loggerConfig struct {
	Verbosity int
	Format    string
}

func newLoggerConfigFromFlags(flags *pflag.FlagSet) *loggerConfig {
	cfg := loggerConfig{}
	flags.IntVarP(&cfg.Verbosity, "verbosity", "v", 0, "Logging level. 1 adds debug output.")
	flags.StringVar(&cfg.Format, "log-format", "text", "Logging format: text or json")
	return &cfg
}

func newLogger(cfg *loggerConfig, out io.Writer) (logr.Logger, error) {
	opts := &slog.HandlerOptions{Level: toSlogLevel(cfg.Verbosity)}

	var h slog.Handler
	switch cfg.Format {
	case "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return logr.Logger{}, fmt.Errorf("unrecognised logging format: %s", cfg.Format)
	}
	return logr.FromSlogHandler(h), nil
}

// toSlogLevel returns the lowest slog level to emit. logr writes V(n) at
// slog level -n.
func toSlogLevel(verbosity int) slog.Level {
	if verbosity <= 0 {
		return slog.LevelInfo
	}
	return slog.Level(-verbosity)
}
