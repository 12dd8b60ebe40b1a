// Package log provides the library's default logger: silent unless
// the embedder supplies one, grounded on go.uber.org/zap as used by
// coinbase/redisbetween for Redis-proxy instrumentation.
package log

import "go.uber.org/zap"

// Default returns l if non-nil, else a no-op logger — every long-lived
// object in this module accepts an optional *zap.Logger and falls back
// through this helper instead of branching on nil at every call site.
func Default(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
