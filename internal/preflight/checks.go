package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"platewatch/internal/config"
	"platewatch/internal/journal"
)

const endpointTimeout = 5 * time.Second

// CheckEndpoint verifies that an HTTP service answers at url. Any response
// below 500 counts as reachable; inference and event routes only accept POST,
// so 404 and 405 still prove the server is up.
func CheckEndpoint(ctx context.Context, name, url string) Result {
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, url, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	client := &http.Client{Timeout: endpointTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (server error %d)", url, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", url)}
}

// CheckBackendAuth reports how event requests are authenticated.
func CheckBackendAuth(cfg *config.Config) Result {
	const name = "Backend auth"
	switch {
	case strings.TrimSpace(cfg.Events.Token) != "":
		return Result{Name: name, Passed: true, Detail: "static bearer token"}
	case strings.TrimSpace(cfg.Events.JWTSecret) != "":
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("signed JWT (ttl %ds)", cfg.Events.JWTTTLSeconds)}
	default:
		return Result{Name: name, Passed: true, Detail: "none (requests are unauthenticated)"}
	}
}

// CheckCloudinary verifies that mirror credentials are configured.
func CheckCloudinary(cfg *config.Config) Result {
	const name = "Cloudinary"
	var missing []string
	if strings.TrimSpace(cfg.Cloudinary.CloudName) == "" {
		missing = append(missing, "cloud_name")
	}
	if strings.TrimSpace(cfg.Cloudinary.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(cfg.Cloudinary.APISecret) == "" {
		missing = append(missing, "api_secret")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	if len(cfg.ArtifactDirs()) == 0 {
		return Result{Name: name, Detail: "enabled but no artifact directories are configured"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("cloud %q, folder %q", cfg.Cloudinary.CloudName, cfg.Cloudinary.Folder)}
}

// CheckJournal opens the journal database and counts its entries.
func CheckJournal(ctx context.Context, path string) Result {
	const name = "Event journal"
	j, err := journal.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer j.Close()
	count, err := j.Count(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, count)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}
