package rewrite

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the logger a Rewriter uses when Options.Logger is nil.
// It receives one debug entry per lowered call site and the warnings for
// builtins that resolve with the wrong signature or that GC has to keep.
// It is a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package logger for Rewriters created afterwards.
// nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
