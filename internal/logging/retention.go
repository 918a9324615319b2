package logging

import (
	"cmp"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget selects files to prune in one directory.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	// Keep protects the newest Keep matching files regardless of age, so a
	// camera that was offline for weeks still has its last runs on disk.
	Keep int
}

type logFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs removes files matching targets that were last modified more
// than retentionDays before now and returns how many were removed. Zero
// retentionDays disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, now time.Time, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, file := range expiredFiles(target, cutoff) {
			if err := os.Remove(file.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", file.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", file.path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

func expiredFiles(target RetentionTarget, cutoff time.Time) []logFile {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	excluded := make(map[string]struct{}, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			excluded[abs] = struct{}{}
		}
	}
	pattern := strings.TrimSpace(target.Pattern)

	var matched []logFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if _, skip := excluded[path]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		matched = append(matched, logFile{path: path, modTime: info.ModTime()})
	}

	// newest first, so the first Keep entries are protected
	slices.SortFunc(matched, func(a, b logFile) int { return b.modTime.Compare(a.modTime) })
	keep := min(max(target.Keep, 0), len(matched))
	expired := matched[keep:]
	expired = slices.DeleteFunc(expired, func(f logFile) bool { return !f.modTime.Before(cutoff) })
	slices.SortFunc(expired, func(a, b logFile) int { return cmp.Compare(a.path, b.path) })
	return expired
}
