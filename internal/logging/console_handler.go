package logging

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// highlightRank orders the fields shown on info and above. Anything not
// listed is only counted so steady-state lines stay short.
var highlightRank = rankKeys(
	FieldAlert,
	FieldEventType,
	FieldPlate,
	FieldReason,
	FieldDecisionType,
	FieldDecisionResult,
	FieldDecisionReason,
	"confirmed_by",
	"status_code",
	"det_confidence",
	"ocr_confidence",
	"detection_path",
	"source",
	"endpoint",
	"path",
	"error",
	FieldErrorHint,
	FieldImpact,
	"attempt",
	"delay",
	"emitted",
	"suppressed",
	"rejected",
	"pending",
	"errors",
)

func rankKeys(keys ...string) map[string]int {
	ranks := make(map[string]int, len(keys))
	for i, key := range keys {
		ranks[key] = i
	}
	return ranks
}

// prettyHandler writes a one-line header per record followed by indented
// fields. Camera and frame attributes are folded into the header.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

type field struct {
	key   string
	value slog.Value
}

// consoleRecord collects one record's attributes; later keys overwrite
// earlier ones in place.
type consoleRecord struct {
	component string
	camera    string
	frame     string
	fields    []field
	index     map[string]int
}

func (r *consoleRecord) add(groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			groups = append(slices.Clip(groups), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			r.add(groups, member)
		}
		return
	}
	attr = sanitizeAttr(attr)
	if attr.Key == "" {
		return
	}
	if len(groups) == 0 {
		switch attr.Key {
		case FieldComponent:
			r.component = attrString(attr.Value)
			return
		case FieldCameraID:
			r.camera = attrString(attr.Value)
			return
		case FieldFrameSeq:
			r.frame = attrString(attr.Value)
			return
		case FieldRunID:
			return
		}
	}
	key := strings.Join(append(slices.Clip(groups), attr.Key), ".")
	if pos, ok := r.index[key]; ok {
		r.fields[pos].value = attr.Value
		return
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, field{key: key, value: attr.Value})
}

func (r *consoleRecord) subject() string {
	camera := strings.TrimSpace(r.camera)
	frame := strings.TrimSpace(r.frame)
	if frame != "" {
		frame = "frame #" + frame
	}
	switch {
	case camera != "" && frame != "":
		return camera + " · " + frame
	default:
		return camera + frame
	}
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var rec consoleRecord
	for _, attr := range h.attrs {
		rec.add(nil, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		rec.add(h.groups, attr)
		return true
	})

	var b strings.Builder
	b.WriteString(formatTimestamp(ts))
	b.WriteString(" " + levelLabel(record.Level))
	if rec.component != "" {
		b.WriteString(" [" + rec.component + "]")
	}
	if subject := rec.subject(); subject != "" {
		b.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" - " + msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, f := range rec.fields {
			fmt.Fprintf(&b, "    %s: %s\n", f.key, formatValue(f.value))
		}
	} else {
		writeHighlights(&b, rec.fields)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func writeHighlights(b *strings.Builder, fields []field) {
	shown := make([]field, 0, len(fields))
	for _, f := range fields {
		if _, ok := highlightRank[f.key]; ok {
			shown = append(shown, f)
		}
	}
	slices.SortStableFunc(shown, func(x, y field) int {
		return cmp.Compare(highlightRank[x.key], highlightRank[y.key])
	})
	for _, f := range shown {
		fmt.Fprintf(b, "    - %s: %s\n", f.key, formatValue(f.value))
	}
	switch hidden := len(fields) - len(shown); {
	case hidden == 1:
		b.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		fmt.Fprintf(b, "    + %d more fields hidden\n", hidden)
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		for i := len(h.groups) - 1; i >= 0; i-- {
			attr = slog.Group(h.groups[i], attr)
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	c := *h
	c.attrs = slices.Clone(h.attrs)
	c.groups = slices.Clone(h.groups)
	return &c
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
