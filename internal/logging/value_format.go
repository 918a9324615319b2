package logging

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	logTimestampLayout = "2006-01-02 15:04:05.000"
	// confidences and ratios rarely need more than four places
	floatPrecision = 4
	maxValueLength = 512
	redacted       = "[redacted]"
)

// secretKeys are never written verbatim. Snapshot payloads are large and
// add nothing to a log line.
var secretKeys = map[string]struct{}{
	"token":             {},
	"jwt":               {},
	"authorization":     {},
	"api_secret":        {},
	"snapshot_jpeg_b64": {},
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(logTimestampLayout)
}

// attrString renders v without quoting, for fields copied into LogEvents.
func attrString(v slog.Value) string {
	return renderValue(v)
}

// formatValue renders v for a key=value console line.
func formatValue(v slog.Value) string {
	s := renderValue(v)
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func renderValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return truncate(v.String())
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return formatFloat(v.Float64())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return truncate(x.Error())
		case []int:
			return joinInts(x)
		case []float64:
			parts := make([]string, len(x))
			for i, f := range x {
				parts[i] = formatFloat(f)
			}
			return strings.Join(parts, ",")
		default:
			return truncate(fmt.Sprint(x))
		}
	default:
		return truncate(v.String())
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', floatPrecision, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// joinInts renders bounding boxes as x1,y1,x2,y2.
func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, n := range values {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func truncate(s string) string {
	if len(s) <= maxValueLength {
		return s
	}
	return s[:maxValueLength] + "…"
}

func isSecretKey(key string) bool {
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

// sanitizeAttr replaces secret values before any handler renders them.
func sanitizeAttr(attr slog.Attr) slog.Attr {
	if isSecretKey(attr.Key) && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
