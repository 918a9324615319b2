// Package notifications publishes worker alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether alerts are enabled. Alerter adapts a
// Service to the pipeline's Recorder hook and decides which emissions are
// worth a push: high-confidence plates, watchlist hits and backend delivery
// failures.
package notifications
