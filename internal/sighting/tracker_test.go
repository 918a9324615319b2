package sighting_test

import (
	"sync"
	"testing"
	"time"

	"platewatch/internal/clock"
	"platewatch/internal/sighting"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(clk clock.Clock) *sighting.Tracker {
	return sighting.NewTracker(sighting.Settings{
		ConfirmFrames: 3,
		ConfirmWindow: 5 * time.Second,
		TTL:           30 * time.Second,
	}, clk)
}

func TestObserveConfirmsByFrames(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := newTracker(clk)

	want := []struct {
		confirmed bool
		reason    sighting.Reason
	}{
		{false, sighting.ReasonWaiting},
		{false, sighting.ReasonWaiting},
		{true, sighting.ReasonFrames},
		{true, sighting.ReasonFrames},
	}
	for i, w := range want {
		confirmed, reason := tracker.Observe("ABC123")
		if confirmed != w.confirmed || reason != w.reason {
			t.Fatalf("observation %d: got (%v, %q) want (%v, %q)", i+1, confirmed, reason, w.confirmed, w.reason)
		}
		clk.Advance(100 * time.Millisecond)
	}

	entry, ok := tracker.Get("ABC123")
	if !ok || entry.Count != 4 {
		t.Fatalf("unexpected entry %+v (ok=%v)", entry, ok)
	}
	if entry.FirstSeen.After(entry.LastSeen) {
		t.Fatalf("first seen after last seen: %+v", entry)
	}
}

func TestObserveConfirmsBySeconds(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := newTracker(clk)

	if confirmed, _ := tracker.Observe("XYZ789"); confirmed {
		t.Fatal("first observation should not confirm")
	}
	clk.Advance(4999 * time.Millisecond)
	if confirmed, reason := tracker.Observe("XYZ789"); confirmed || reason != sighting.ReasonWaiting {
		t.Fatalf("expected waiting just before window, got %v %q", confirmed, reason)
	}
	// Third observation would confirm by frames, so use a fresh plate for
	// the exact boundary.
	tracker2 := newTracker(clk)
	tracker2.Observe("LMN456")
	clk.Advance(5 * time.Second)
	if confirmed, reason := tracker2.Observe("LMN456"); !confirmed || reason != sighting.ReasonSeconds {
		t.Fatalf("expected seconds confirmation at window, got %v %q", confirmed, reason)
	}
}

func TestFramesTakePrecedenceOverSeconds(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := newTracker(clk)
	tracker.Observe("ABC123")
	tracker.Observe("ABC123")
	clk.Advance(10 * time.Second)
	if _, reason := tracker.Observe("ABC123"); reason != sighting.ReasonFrames {
		t.Fatalf("expected frames, got %q", reason)
	}
}

func TestExpireRemovesIdleEntries(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := newTracker(clk)
	tracker.Observe("OLD111")
	clk.Advance(20 * time.Second)
	tracker.Observe("NEW222")

	now := epoch.Add(30 * time.Second)
	if removed := tracker.Expire(now); removed != 0 {
		t.Fatalf("entry exactly at ttl must survive, removed %d", removed)
	}
	now = now.Add(time.Millisecond)
	if removed := tracker.Expire(now); removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if removed := tracker.Expire(now); removed != 0 {
		t.Fatalf("second expire should be a no-op, removed %d", removed)
	}
	if _, ok := tracker.Get("OLD111"); ok {
		t.Fatal("OLD111 should have expired")
	}
	if tracker.Len() != 1 {
		t.Fatalf("expected one entry left, got %d", tracker.Len())
	}

	// An expired plate starts over.
	clk.Set(now)
	if confirmed, _ := tracker.Observe("OLD111"); confirmed {
		t.Fatal("re-observed plate should restart pending")
	}
}

func TestSnapshotOrdersByRecency(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := newTracker(clk)
	tracker.Observe("AAA111")
	clk.Advance(time.Second)
	tracker.Observe("BBB222")

	snap := tracker.Snapshot()
	if len(snap) != 2 || snap[0].Plate != "BBB222" || snap[1].Plate != "AAA111" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	snap[0].Count = 99
	if entry, _ := tracker.Get("BBB222"); entry.Count != 1 {
		t.Fatal("snapshot must not alias tracker state")
	}
}

// steppingClock hands out increasing times. The first reading blocks until
// release is closed so a second observer can try to run in between.
type steppingClock struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if n == 1 {
		close(c.entered)
		<-c.release
	}
	return epoch.Add(time.Duration(n) * time.Second)
}

func TestObserveReadsClockUnderLock(t *testing.T) {
	clk := &steppingClock{entered: make(chan struct{}), release: make(chan struct{})}
	tracker := newTracker(clk)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.Observe("ABC123")
	}()
	<-clk.entered
	go func() {
		defer wg.Done()
		tracker.Observe("ABC123")
	}()
	time.Sleep(20 * time.Millisecond)
	close(clk.release)
	wg.Wait()

	entry, ok := tracker.Get("ABC123")
	if !ok || entry.Count != 2 {
		t.Fatalf("expected two sightings, got %+v", entry)
	}
	if entry.LastSeen.Before(entry.FirstSeen) {
		t.Fatalf("last seen %v precedes first seen %v", entry.LastSeen, entry.FirstSeen)
	}
}
