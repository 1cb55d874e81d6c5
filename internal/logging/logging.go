// Package logging builds the zap logger used by the commands and carries it
// through context.Context.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// New returns a JSON production logger writing to stderr, or a development
// console logger at debug level when verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// ToContext returns a copy of ctx carrying logger.
func ToContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// Named returns the context logger with name appended.
func Named(ctx context.Context, name string) *zap.Logger {
	return FromContext(ctx).Named(name)
}
