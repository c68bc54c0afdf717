package proc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Daemon is a background process started through a Runner. Stopping it sends
// SIGTERM and reaps the process; a process that already exited on its own is
// an accepted terminal state, not an error.
type Daemon struct {
	cmd    *exec.Cmd
	argv   []string
	stdout io.ReadCloser
	stdin  io.WriteCloser

	mu     sync.Mutex
	reaped bool
}

var _ Handle = (*Daemon)(nil)

func (d *Daemon) Pid() int { return d.cmd.Process.Pid }

func (d *Daemon) Stdout() io.Reader {
	if d.stdout == nil {
		return nil
	}
	return d.stdout
}

func (d *Daemon) String() string {
	return strings.Join(d.argv, " ")
}

// Stop requests termination and waits for the process to exit. Calling Stop
// on an already-stopped or already-exited daemon returns nil.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reaped {
		return nil
	}
	if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if !isProcessGone(err) {
			return &CommandError{Path: d.argv[0], Args: d.argv[1:], Err: err}
		}
	}
	d.reap()
	return nil
}

// Wait blocks until the process exits on its own. A non-zero exit status is
// reported as a CommandError.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reaped {
		return nil
	}
	if d.stdin != nil {
		_ = d.stdin.Close()
	}
	err := d.cmd.Wait()
	d.reaped = true
	if err != nil {
		return wrapWaitError(d.argv, err)
	}
	return nil
}

// reap waits for the terminated process, discarding the exit status: a
// SIGTERM death reads as an "error" from cmd.Wait but is the expected
// outcome of stopping a daemon.
func (d *Daemon) reap() {
	if d.stdin != nil {
		_ = d.stdin.Close()
	}
	_ = d.cmd.Wait()
	d.reaped = true
}

func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
