// Package main hosts the platewatch CLI entrypoint and command graph.
//
// The Cobra command tree runs the per-camera worker in the foreground or
// detached, queries a running worker through its status API, inspects and
// prunes the event journal, sends test events to the backend and scaffolds
// configuration. Configuration resolution and flag overrides live in the
// command context so subcommands only deal with presentation.
package main
