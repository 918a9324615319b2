package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"platewatch/internal/daemonctl"
	"platewatch/internal/testsupport"
)

func TestIsRunningFollowsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, err := daemonctl.IsRunning(cfg)
	if err != nil || running {
		t.Fatalf("expected not running without lock file, got %v %v", running, err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("lock: %v", err)
	}
	running, err = daemonctl.IsRunning(cfg)
	if err != nil || !running {
		t.Fatalf("expected running while locked, got %v %v", running, err)
	}
	_ = lock.Unlock()

	running, err = daemonctl.IsRunning(cfg)
	if err != nil || running {
		t.Fatalf("expected not running after unlock, got %v %v", running, err)
	}
}

func TestStopWithoutWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.Stop(cfg, time.Second); !errors.Is(err, daemonctl.ErrWorkerNotRunning) {
		t.Fatalf("expected ErrWorkerNotRunning, got %v", err)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pid")
	if err := os.WriteFile(good, []byte(strconv.Itoa(4242)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := daemonctl.ReadPID(good); err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
	bad := filepath.Join(dir, "bad.pid")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ReadPID(bad); err == nil {
		t.Fatal("expected error for invalid pid file")
	}
}

func TestProcessAlive(t *testing.T) {
	if !daemonctl.ProcessAlive(os.Getpid()) {
		t.Fatal("current process should be alive")
	}
	if daemonctl.ProcessAlive(0) {
		t.Fatal("pid 0 should not be reported alive")
	}
}
