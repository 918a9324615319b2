// Package logging assembles structured slog loggers and formatting helpers used
// across platewatch.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with the camera, frame sequence and plate being decided. A bounded
// StreamHub keeps recent events for the worker status API, and a no-op logger
// serves tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape and routing.
package logging
