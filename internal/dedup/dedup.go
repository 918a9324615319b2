// Package dedup suppresses repeat emissions of the same plate within a
// configurable window.
package dedup

import (
	"sync"
	"time"
)

// Settings configures the suppression window and retention.
type Settings struct {
	Window time.Duration
	TTL    time.Duration
}

// Deduplicator is safe for concurrent use.
type Deduplicator struct {
	settings Settings

	mu      sync.Mutex
	emitted map[string]time.Time
}

// New constructs an empty deduplicator.
func New(settings Settings) *Deduplicator {
	return &Deduplicator{settings: settings, emitted: make(map[string]time.Time)}
}

// ShouldSuppress reports whether plate was emitted less than Window before now.
func (d *Deduplicator) ShouldSuppress(plate string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.emitted[plate]
	if !ok {
		return false
	}
	return now.Sub(last) < d.settings.Window
}

// MarkEmitted records an emission of plate at now.
func (d *Deduplicator) MarkEmitted(plate string, now time.Time) {
	d.mu.Lock()
	d.emitted[plate] = now
	d.mu.Unlock()
}

// Claim marks plate as emitted at now and returns a release func that undoes
// the mark when the emission did not go through. Release restores the
// previous timestamp, or forgets the plate, unless a newer mark replaced
// this one in the meantime.
func (d *Deduplicator) Claim(plate string, now time.Time) (release func()) {
	d.mu.Lock()
	prev, hadPrev := d.emitted[plate]
	d.emitted[plate] = now
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if cur, ok := d.emitted[plate]; !ok || !cur.Equal(now) {
				return
			}
			if hadPrev {
				d.emitted[plate] = prev
				return
			}
			delete(d.emitted, plate)
		})
	}
}

// Expire drops emissions older than TTL and returns how many were removed.
func (d *Deduplicator) Expire(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for plate, ts := range d.emitted {
		if now.Sub(ts) > d.settings.TTL {
			delete(d.emitted, plate)
			removed++
		}
	}
	return removed
}

// Seed restores emission timestamps, keeping the newest per plate. Used at
// startup so a restart does not re-emit inside the window.
func (d *Deduplicator) Seed(entries map[string]time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for plate, ts := range entries {
		if cur, ok := d.emitted[plate]; ok && !ts.After(cur) {
			continue
		}
		d.emitted[plate] = ts
	}
}

// LastEmitted returns the recorded emission time for plate.
func (d *Deduplicator) LastEmitted(plate string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.emitted[plate]
	return ts, ok
}

// Len reports the number of retained emissions.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.emitted)
}
