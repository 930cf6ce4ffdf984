// Package logging provides the operator-facing logging interface used across
// InsightMesh.
//
// The Logger interface defines Debug, Info, Warn and Error with slog-style
// key/value arguments. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a *slog.Logger
//   - RunLogger, a contextual logger with helpers for tier attempts, model
//     calls and run summaries
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// Operator logs are separate from the per-run log sink (core.LogFunc), which
// carries the user-facing messages of a single execution.
package logging
