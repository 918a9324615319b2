package capture_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"platewatch/internal/capture"
	"platewatch/internal/lpr"
)

type blockingProcessor struct {
	mu      sync.Mutex
	seen    []uint64
	release chan struct{}
	started chan uint64
	ctxErrs []error
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{release: make(chan struct{}), started: make(chan uint64, 16)}
}

func (b *blockingProcessor) process(ctx context.Context, frame lpr.Frame) {
	b.started <- frame.Seq
	<-b.release
	b.mu.Lock()
	b.seen = append(b.seen, frame.Seq)
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	b.mu.Unlock()
}

func (b *blockingProcessor) processed() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.seen...)
}

func waitStarted(t *testing.T, ch <-chan uint64) uint64 {
	t.Helper()
	select {
	case seq := <-ch:
		return seq
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame to start")
		return 0
	}
}

func TestSchedulerKeepsOnlyNewestPendingFrame(t *testing.T) {
	proc := newBlockingProcessor()
	sched := capture.NewScheduler(proc.process, 1, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !sched.Submit(lpr.Frame{Seq: 1}) {
		t.Fatal("first submit should not replace anything")
	}
	if got := waitStarted(t, proc.started); got != 1 {
		t.Fatalf("expected frame 1 in flight, got %d", got)
	}

	if !sched.Submit(lpr.Frame{Seq: 2}) {
		t.Fatal("second submit fills the empty pending slot")
	}
	if sched.Submit(lpr.Frame{Seq: 3}) {
		t.Fatal("third submit should report that it replaced frame 2")
	}
	if sched.Submit(lpr.Frame{Seq: 4}) {
		t.Fatal("fourth submit should report that it replaced frame 3")
	}

	stats := sched.Stats()
	if stats.Dropped != 2 || stats.Submitted != 4 || !stats.Pending || stats.InFlight != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	proc.release <- struct{}{}
	if got := waitStarted(t, proc.started); got != 4 {
		t.Fatalf("expected newest frame 4 next, got %d", got)
	}
	proc.release <- struct{}{}
	sched.Stop()

	if got := proc.processed(); len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("unexpected processed order %v", got)
	}
	if stats := sched.Stats(); stats.Processed != 2 {
		t.Fatalf("expected two processed frames, got %+v", stats)
	}
}

func TestSchedulerStopWaitsForInFlightWork(t *testing.T) {
	proc := newBlockingProcessor()
	sched := capture.NewScheduler(proc.process, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Submit(lpr.Frame{Seq: 1})
	waitStarted(t, proc.started)
	sched.Submit(lpr.Frame{Seq: 2})

	cancel()
	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a frame was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	proc.release <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after in-flight work finished")
	}

	if got := proc.processed(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("pending frame should be discarded on stop, processed %v", got)
	}
	if errs := proc.ctxErrs; len(errs) != 1 || errs[0] != nil {
		t.Fatalf("in-flight work must not observe cancellation, got %v", errs)
	}
	if sched.Submit(lpr.Frame{Seq: 3}) {
		t.Fatal("submit after stop must be rejected")
	}
}

func TestSchedulerPoolRunsFramesConcurrently(t *testing.T) {
	proc := newBlockingProcessor()
	sched := capture.NewScheduler(proc.process, 2, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Submit(lpr.Frame{Seq: 1})
	waitStarted(t, proc.started)
	sched.Submit(lpr.Frame{Seq: 2})
	waitStarted(t, proc.started)

	if stats := sched.Stats(); stats.InFlight != 2 || stats.Pending {
		t.Fatalf("expected two in-flight frames, got %+v", stats)
	}
	close(proc.release)
	sched.Stop()
	if got := proc.processed(); len(got) != 2 {
		t.Fatalf("expected both frames processed, got %v", got)
	}
}

func TestSchedulerRejectsDoubleStart(t *testing.T) {
	sched := capture.NewScheduler(func(context.Context, lpr.Frame) {}, 1, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()
	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected error on second Start")
	}
}
