package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"platewatch/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		status int
		pass   bool
	}{
		{"ok", http.StatusOK, true},
		{"method not allowed", http.StatusMethodNotAllowed, true},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := CheckEndpoint(context.Background(), "Detector", srv.URL+"/detect")
			if result.Passed != tt.pass {
				t.Fatalf("Passed = %v, want %v (%s)", result.Passed, tt.pass, result.Detail)
			}
		})
	}
}

func TestCheckEndpoint_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := CheckEndpoint(context.Background(), "Recognizer", url)
	if result.Passed || !strings.Contains(result.Detail, "unreachable") {
		t.Fatalf("expected unreachable failure, got %+v", result)
	}
	if CheckEndpoint(context.Background(), "Recognizer", " ").Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestCheckCloudinaryMissingCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithArtifacts())
	cfg.Cloudinary.Enabled = true
	cfg.Cloudinary.CloudName = "demo"
	result := CheckCloudinary(cfg)
	if result.Passed || !strings.Contains(result.Detail, "api_key, api_secret") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckSourceReplayDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if CheckSource(context.Background(), cfg).Passed {
		t.Fatal("expected failure before the replay directory exists")
	}
	testsupport.WriteJPEG(t, filepath.Join(testsupport.BaseDir(cfg), "frames", "0001.jpg"), 8, 8)
	if result := CheckSource(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}

func TestRunAllDryRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()
	cfg.Detector.Endpoint = srv.URL + "/detect"
	cfg.Recognizer.Endpoint = srv.URL + "/recognize"

	results := RunAll(context.Background(), cfg)
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"State directory", "Log directory", "Detector", "Recognizer", "Event backend", "Event journal"} {
		r, ok := byName[name]
		if !ok {
			t.Fatalf("missing check %q in %+v", name, results)
		}
		if !r.Passed {
			t.Fatalf("check %q failed: %s", name, r.Detail)
		}
	}
	if _, ok := byName["Backend auth"]; ok {
		t.Fatal("dry-run should skip backend auth")
	}
}
