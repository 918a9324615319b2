package preflight

import (
	"context"
	"strings"

	"platewatch/internal/config"
	"platewatch/internal/deps"
	"platewatch/internal/source"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	for _, dir := range cfg.ArtifactDirs() {
		results = append(results, CheckDirectoryAccess("Artifact directory", dir))
	}

	results = append(results, CheckSource(ctx, cfg))
	results = append(results, CheckEndpoint(ctx, "Detector", cfg.Detector.Endpoint))
	results = append(results, CheckEndpoint(ctx, "Recognizer", cfg.Recognizer.Endpoint))

	if cfg.Events.DryRun {
		results = append(results, Result{Name: "Event backend", Passed: true, Detail: "dry-run (delivery disabled)"})
	} else {
		results = append(results, CheckEndpoint(ctx, "Event backend", cfg.Events.BackendURL))
		results = append(results, CheckBackendAuth(cfg))
	}

	if cfg.Cloudinary.Enabled {
		results = append(results, CheckCloudinary(cfg))
	}
	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckEndpoint(ctx, "Notifications", cfg.Notifications.NtfyTopic))
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckJournal(ctx, cfg.JournalPath()))
	}
	return results
}

// CheckSource verifies the frame source can be opened: the replay directory
// for dir:// urls, otherwise the ffmpeg binary.
func CheckSource(ctx context.Context, cfg *config.Config) Result {
	const name = "Frame source"
	url := strings.TrimSpace(cfg.Camera.SourceURL)
	if url == "" {
		return Result{Name: name, Detail: "camera.source_url is empty"}
	}
	if dir, ok := strings.CutPrefix(url, source.DirScheme); ok {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return Result{Name: name, Detail: err.Error()}
		}
		check := CheckDirectoryAccess(name, expanded)
		check.Detail = source.DirScheme + check.Detail
		return check
	}
	status := CheckSystemDeps(cfg)[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	detail := source.Describe(url) + " via " + status.Command
	if version := deps.ProbeVersion(ctx, status); version != "" {
		detail += " (" + version + ")"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries a worker may execute.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return []deps.Status{deps.ResolveFFmpeg(cfg.FFmpegBinary())}
}
