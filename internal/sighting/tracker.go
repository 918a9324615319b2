// Package sighting tracks how often and for how long each normalized plate
// has been seen, and decides when a plate is confirmed for emission.
//
// A plate moves from absent to pending on its first observation and becomes
// confirmed once it has been seen in enough frames or for long enough.
// Entries idle longer than the TTL are forgotten on the next Expire.
package sighting

import (
	"sort"
	"sync"
	"time"

	"platewatch/internal/clock"
)

// Reason explains the outcome of an observation.
type Reason string

const (
	ReasonFrames  Reason = "frames"
	ReasonSeconds Reason = "seconds"
	ReasonWaiting Reason = "waiting"
)

// Entry is the tracked state for one plate.
type Entry struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
}

// Settings configures confirmation thresholds.
type Settings struct {
	ConfirmFrames int
	ConfirmWindow time.Duration
	TTL           time.Duration
}

// Tracker is safe for concurrent use.
type Tracker struct {
	settings Settings
	clock    clock.Clock

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewTracker constructs an empty tracker. A nil clock uses wall time.
func NewTracker(settings Settings, clk clock.Clock) *Tracker {
	return &Tracker{
		settings: settings,
		clock:    clock.Or(clk),
		entries:  make(map[string]*Entry),
	}
}

// Observe records one sighting of plate and reports whether it is confirmed.
func (t *Tracker) Observe(plate string) (bool, Reason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()

	entry, ok := t.entries[plate]
	if !ok {
		entry = &Entry{FirstSeen: now, LastSeen: now}
		t.entries[plate] = entry
	}
	entry.Count++
	entry.LastSeen = now

	if entry.Count >= t.settings.ConfirmFrames {
		return true, ReasonFrames
	}
	if now.Sub(entry.FirstSeen) >= t.settings.ConfirmWindow && entry.Count >= 1 {
		return true, ReasonSeconds
	}
	return false, ReasonWaiting
}

// Expire removes entries idle for longer than the TTL and returns how many
// were dropped. Calling it repeatedly with the same now is a no-op.
func (t *Tracker) Expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for plate, entry := range t.entries {
		if now.Sub(entry.LastSeen) > t.settings.TTL {
			delete(t.entries, plate)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked plates.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Get returns a copy of the entry for plate.
func (t *Tracker) Get(plate string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[plate]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Sighting pairs a plate with its tracked state.
type Sighting struct {
	Plate string `json:"plate"`
	Entry
}

// Snapshot returns a copy of every entry, most recently seen first.
func (t *Tracker) Snapshot() []Sighting {
	t.mu.Lock()
	out := make([]Sighting, 0, len(t.entries))
	for plate, entry := range t.entries {
		out = append(out, Sighting{Plate: plate, Entry: *entry})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].Plate < out[j].Plate
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}
