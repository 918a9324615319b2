// Package preflight provides readiness checks for the directories and
// external services a platewatch worker depends on.
//
// The CLI "platewatch preflight" command runs RunAll and prints the results;
// "platewatch status" reuses the directory and binary checks when no worker
// is running. Each check is gated by its config toggle, so disabled features
// are skipped.
package preflight
