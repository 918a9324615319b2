// Package config holds the worker's TOML configuration.
//
// Load reads a file (or starts from Default when none exists), fills
// credentials from PLATEWATCH_* and CLOUDINARY_* environment variables,
// expands ~ in paths and validates every threshold the decision pipeline
// reads. Seconds-valued settings are exposed as time.Duration through
// accessor methods such as ConfirmWindow and DedupWindow.
package config
