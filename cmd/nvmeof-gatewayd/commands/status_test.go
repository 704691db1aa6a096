package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
)

func TestRunStatus_NoPidFile(t *testing.T) {
	statusPidFile = filepath.Join(t.TempDir(), "nonexistent.pid")
	statusOutput = "table"
	defer func() { statusPidFile = "" }()

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("runStatus() returned unexpected error: %v", err)
	}
}

func TestRunStatus_StalePid(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "stale.pid")
	// PID 999999 is taken to belong to no running process.
	if err := os.WriteFile(pidPath, []byte("999999"), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	statusPidFile = pidPath
	statusOutput = "json"
	defer func() { statusPidFile = ""; statusOutput = "table" }()

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("runStatus() returned unexpected error: %v", err)
	}
}

func TestRunStatus_LivePid(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "live.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	process, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess(self) failed: %v", err)
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		t.Skipf("self-signal not permitted in this sandbox: %v", err)
	}

	statusPidFile = pidPath
	statusOutput = "table"
	defer func() { statusPidFile = "" }()

	status := GatewayStatus{Running: true, PID: os.Getpid(), Message: "Gateway is running"}
	if !strings.Contains(fmt.Sprintf("%+v", status), strconv.Itoa(os.Getpid())) {
		t.Fatalf("expected status to report pid %d", os.Getpid())
	}

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("runStatus() returned unexpected error: %v", err)
	}
}
