// Package api defines the wire-format types served by the worker status API
// and consumed by the CLI. It translates journal entries and runtime
// counters into transport-friendly DTOs so clients never couple to internal
// types.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
