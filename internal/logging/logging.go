// Package logging builds the process logger.
//
// Logs are slog records, JSON on stdout by default. Every record carries the
// service name, version and environment. slog has no fatal level, so LevelFatal
// sits above LevelError and is rendered as "FATAL".
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelFatal marks errors the process cannot survive, such as failing to bind its port.
const LevelFatal = slog.Level(12)

// Options configures New.
type Options struct {
	Level   string
	JSON    bool
	Service string
	Version string
	Env     string
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// New returns a logger configured from opts. An unknown level falls back to info.
func New(opts Options) *slog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	if opts.Version != "" {
		logger = logger.With(slog.String("version", opts.Version))
	}
	if opts.Env != "" {
		logger = logger.With(slog.String("env", opts.Env))
	}
	if err != nil {
		logger.Warn("unknown log level, using info", slog.String("level", opts.Level))
	}
	return logger
}

// ParseLevel accepts debug, info, warn/warning, error and fatal in any case.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelFatal {
		a.Value = slog.StringValue("FATAL")
	}
	return a
}
