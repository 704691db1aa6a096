package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
)

// managedProcess wraps a subprocess this Supervisor owns the lifetime
// of (the target engine, the monitor client), per §3's "Supervisor
// exclusively owns the lifetime of the target-engine subprocess."
type managedProcess struct {
	name string
	cmd  *exec.Cmd
	exit chan error
}

// startProcess launches path with args/env, streaming stdout/stderr
// into w, and begins waiting for its exit in the background.
func startProcess(name, path string, args, env []string, w *RotatingFile) (*managedProcess, error) {
	cmd := exec.Command(path, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %s: %w", name, err)
	}

	mp := &managedProcess{name: name, cmd: cmd, exit: make(chan error, 1)}
	go func() {
		mp.exit <- cmd.Wait()
	}()
	return mp, nil
}

// terminate sends SIGTERM, waits up to timeout, then SIGKILLs.
func (mp *managedProcess) terminate(timeout time.Duration) error {
	if mp.cmd.Process == nil {
		return nil
	}
	_ = mp.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-mp.exit:
		return err
	case <-time.After(timeout):
		logger.Warn("supervisor: subprocess did not exit after SIGTERM, killing", "process", mp.name)
		_ = mp.cmd.Process.Kill()
		return <-mp.exit
	}
}

// watchChildren installs a SIGCHLD handler that treats any of the
// tracked processes' unexpected exits as fatal, per §4.8: "install
// SIGCHLD handler that converts unexpected child exits to a fatal
// process-exit with child pid and status." expectedExit is closed by
// the shutdown sequence before it deliberately terminates a tracked
// process, so a SIGCHLD arriving after that point is not treated as a
// crash.
func watchChildren(ctx context.Context, tracked []*managedProcess, expectedExit <-chan struct{}, onFatal func(name string, err error)) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGCHLD)

	for _, mp := range tracked {
		mp := mp
		go func() {
			err := <-mp.exit
			select {
			case <-expectedExit:
				return
			case <-ctx.Done():
				return
			default:
				onFatal(mp.name, err)
			}
		}()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(sigCh)
				return
			case <-sigCh:
				// Individual per-process goroutines above classify and
				// report; this handler only needs to keep draining the
				// signal channel so the runtime doesn't block delivery.
			}
		}
	}()
}
