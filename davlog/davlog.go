// Package davlog provides the engine's structured logging helper: a thin
// wrapper around github.com/rs/zerolog, grounded on cs3org-reva's pervasive
// zerolog.Logger plumbing (a logger threaded through contexts and handed
// down into per-component "sub-loggers" tagged with the component name).
package davlog

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New builds a console-friendly logger writing to w (os.Stderr if nil).
func New(w io.Writer, debug bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithLogger attaches l to ctx.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From extracts the logger attached to ctx, or a disabled logger if none
// was attached (so callers never need a nil check).
func From(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}

// Component returns a sub-logger tagged with the given component name,
// used so log lines from the path model, lock engine, and property
// engine can be filtered independently.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
