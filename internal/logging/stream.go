package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line kept by the stream hub.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	CameraID  string            `json:"camera_id,omitempty"`
	FrameSeq  uint64            `json:"frame_seq,omitempty"`
	Plate     string            `json:"plate,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a fixed-size ring so the
// status API can serve tails and follow cursors without touching disk.
type StreamHub struct {
	mu      sync.Mutex
	ring    []LogEvent
	head    int // index of the oldest event
	size    int
	nextSeq uint64
}

// NewStreamHub constructs a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity)}
}

// Publish assigns the next sequence number to evt and stores it, evicting
// the oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.head+h.size)%capacity] = evt
		h.size++
		return
	}
	h.ring[h.head] = evt
	h.head = (h.head + 1) % capacity
}

// at returns the i-th oldest stored event. Callers hold mu.
func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

// Tail returns the most recent limit events, oldest first, and the latest
// sequence number.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := min(h.clampLimit(limit), h.size)
	out := make([]LogEvent, n)
	for i := range n {
		out[i] = h.at(h.size - n + i)
	}
	return out, h.nextSeq
}

// Since returns up to limit events with a sequence greater than since,
// oldest first. Events evicted before the caller caught up are skipped.
func (h *StreamHub) Since(since uint64, limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, since
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	limit = h.clampLimit(limit)
	out := make([]LogEvent, 0, min(limit, h.size))
	for i := 0; i < h.size && len(out) < limit; i++ {
		if evt := h.at(i); evt.Sequence > since {
			out = append(out, evt)
		}
	}
	return out, h.nextSeq
}

// streamHandler mirrors every enabled record into a StreamHub before
// passing it on. Grouped attributes are flattened to dotted keys.
type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	attrs  []slog.Attr
	prefix string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	evt := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range h.attrs {
		evt.apply("", attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		evt.apply(h.prefix, attr)
		return true
	})
	h.hub.Publish(evt)
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, attr := range attrs {
		if h.prefix != "" {
			attr = slog.Group(strings.TrimSuffix(h.prefix, "."), attr)
		}
		merged = append(merged, attr)
	}
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: merged, prefix: h.prefix}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// apply folds one attribute into evt. The well-known detection fields are
// only promoted when they appear at the top level.
func (evt *LogEvent) apply(prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	key := strings.TrimSpace(attr.Key)
	if attr.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix += key + "."
		}
		for _, member := range attr.Value.Group() {
			evt.apply(prefix, member)
		}
		return
	}
	if key == "" {
		return
	}
	attr = sanitizeAttr(attr)
	if prefix == "" {
		switch key {
		case FieldComponent:
			evt.Component = attrString(attr.Value)
			return
		case FieldCameraID:
			evt.CameraID = attrString(attr.Value)
			return
		case FieldPlate:
			evt.Plate = attrString(attr.Value)
			return
		case FieldFrameSeq:
			switch attr.Value.Kind() {
			case slog.KindUint64:
				evt.FrameSeq = attr.Value.Uint64()
				return
			case slog.KindInt64:
				if v := attr.Value.Int64(); v >= 0 {
					evt.FrameSeq = uint64(v)
					return
				}
			}
		}
	}
	if evt.Fields == nil {
		evt.Fields = make(map[string]string)
	}
	evt.Fields[prefix+key] = attrString(attr.Value)
}
