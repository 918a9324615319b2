// Package capture feeds frames from a source into the decision pipeline.
//
// The Scheduler holds at most one pending frame: a newer frame replaces a
// pending one that has not started, so a slow pipeline drops stale frames
// instead of building a backlog. The Loop reads the source, reconnects on
// failure and enforces the poll interval.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

// ProcessFunc decides one frame.
type ProcessFunc func(ctx context.Context, frame lpr.Frame)

// SchedulerStats reports scheduler counters.
type SchedulerStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	InFlight  int    `json:"in_flight"`
	Pending   bool   `json:"pending"`
	Workers   int    `json:"workers"`
}

// Scheduler runs ProcessFunc on a fixed pool of workers.
type Scheduler struct {
	process ProcessFunc
	workers int
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	stopped  bool
	pending  *lpr.Frame
	inFlight int
	stats    SchedulerStats

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler constructs a scheduler with the given pool size (minimum 1).
func NewScheduler(process ProcessFunc, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		process: process,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the worker pool. Frames are processed under a context that
// carries ctx's values but is not cancelled with it, so a frame that has
// started always completes.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.process == nil {
		return errors.New("scheduler has no process function")
	}
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.running = true
	s.wg.Add(s.workers)
	s.mu.Unlock()

	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < s.workers; i++ {
		go s.runWorker(workCtx)
	}
	s.logger.Debug("scheduler started", logging.Int("workers", s.workers))
	return nil
}

// Submit offers a frame without blocking. It returns false when the frame
// replaced a pending one or the scheduler is not running.
func (s *Scheduler) Submit(frame lpr.Frame) bool {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return false
	}
	replaced := s.pending != nil
	if replaced {
		s.stats.Dropped++
	}
	s.pending = &frame
	s.stats.Submitted++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return !replaced
}

// Stop rejects further submissions, discards a pending frame and waits for
// in-flight frames to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.pending != nil {
		s.pending = nil
		s.stats.Dropped++
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	stats := s.stats
	s.mu.Unlock()
	s.logger.Debug("scheduler stopped",
		logging.Uint64("processed", stats.Processed),
		logging.Uint64("dropped", stats.Dropped),
	)
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.InFlight = s.inFlight
	stats.Pending = s.pending != nil
	stats.Workers = s.workers
	return stats
}

func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		frame, ok := s.take()
		if !ok {
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			}
		}
		s.run(ctx, frame)
	}
}

func (s *Scheduler) take() (lpr.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.pending == nil {
		return lpr.Frame{}, false
	}
	frame := *s.pending
	s.pending = nil
	s.inFlight++
	return frame, true
}

func (s *Scheduler) run(ctx context.Context, frame lpr.Frame) {
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.stats.Processed++
		s.mu.Unlock()
	}()
	s.process(ctx, frame)
}
