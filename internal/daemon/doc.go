// Package daemon coordinates the long-running platewatch worker for one
// camera.
//
// It wires the decision pipeline, the capture scheduler and loop, the event
// journal and the status API into a single lifecycle with flock-based
// locking so only one worker runs per camera. Run owns startup ordering:
// take the lock, restore recent emissions from the journal into the
// deduplicator, start the worker pool, then run capture, the API and journal
// maintenance in one errgroup until the context is cancelled.
//
// Keep orchestration logic here: decision rules live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
