package runtime

import (
	"errors"
	"io"
	"log/slog"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		g.logger = logger
		return nil
	}
}

// WithTraceWriter sends exported spans to w instead of stdout.
// Only used when tracing is enabled in the config.
func WithTraceWriter(w io.Writer) Option {
	return func(g *Gateway) error {
		g.traceWriter = w
		return nil
	}
}
