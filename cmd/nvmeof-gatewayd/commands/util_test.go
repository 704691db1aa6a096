package commands

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestGetDefaultStateDir_RespectsXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	dir := GetDefaultStateDir()
	if dir != filepath.Join("/tmp/xdg-state", "nvmeof-gatewayd") {
		t.Errorf("GetDefaultStateDir() = %q, want suffix nvmeof-gatewayd under XDG_STATE_HOME", dir)
	}
}

func TestGetDefaultPidFileAndLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	pidFile := GetDefaultPidFile()
	if !strings.HasSuffix(pidFile, "nvmeof-gatewayd.pid") {
		t.Errorf("GetDefaultPidFile() = %q, want suffix nvmeof-gatewayd.pid", pidFile)
	}

	logFile := GetDefaultLogFile()
	if !strings.HasSuffix(logFile, "nvmeof-gatewayd.log") {
		t.Errorf("GetDefaultLogFile() = %q, want suffix nvmeof-gatewayd.log", logFile)
	}
}
