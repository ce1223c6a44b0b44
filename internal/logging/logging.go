// Package logging provides the structured, context-carried logger used
// throughout the engine: a *slog.Logger travels in the context, fields
// accumulate via NewContext/WithFields, and WithContext/FromContext pull
// the current logger back out.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ctxKey struct{}

var root = slog.New(slog.NewJSONHandler(os.Stderr, nil))

// SetFormat switches the root handler between "json" (default) and "text".
// Called once from cmd/tcpprep after flag parsing.
func SetFormat(format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	switch format {
	case "text":
		root = slog.New(slog.NewTextHandler(w, nil))
	default:
		root = slog.New(slog.NewJSONHandler(w, nil))
	}
}

// NewContext returns a context carrying a logger derived from the one
// already in ctx (or the package root, if none is present) with kv pairs
// attached as structured fields.
func NewContext(ctx context.Context, kv ...any) context.Context {
	logger := WithContext(ctx).With(kv...)
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithFields is an alias of NewContext kept for parity with the spelling
// used elsewhere in the codebase's middleware-style call sites.
func WithFields(ctx context.Context, kv ...any) context.Context {
	return NewContext(ctx, kv...)
}

// WithContext returns the logger stored in ctx, or the package root logger
// if ctx carries none.
func WithContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return root
}

// FromContext is an alias of WithContext kept for parity with the spelling
// used elsewhere in the codebase's middleware-style call sites.
func FromContext(ctx context.Context) *slog.Logger {
	return WithContext(ctx)
}
