// Package deps resolves the external binaries a worker executes.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// ResolveFFmpeg reports the ffmpeg binary stream sources will execute.
//
// A configured value containing a path separator must point at an executable
// file. Bare names are resolved from PATH, and an empty value means "ffmpeg".
func ResolveFFmpeg(configured string) Status {
	return resolve(Status{
		Name:        "FFmpeg",
		Description: "Decodes camera streams into JPEG frames",
	}, configured, "ffmpeg")
}

func resolve(status Status, configured, fallback string) Status {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = fallback
	}
	status.Command = name

	if strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil || !isExecutable(info) {
			status.Detail = fmt.Sprintf("%q is not an executable file", name)
			return status
		}
		status.Available = true
		return status
	}

	resolved, err := exec.LookPath(name)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", name)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// ProbeVersion runs "<command> -version" and returns the first output line,
// e.g. "ffmpeg version 6.1.1". It returns "" when the probe fails.
func ProbeVersion(ctx context.Context, status Status) string {
	if !status.Available {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, status.Command, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if !scanner.Scan() {
		return ""
	}
	line := strings.TrimSpace(scanner.Text())
	if idx := strings.Index(line, " Copyright"); idx > 0 {
		line = line[:idx]
	}
	return line
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
