// Package proc runs external programs, either to completion or as
// supervised background daemons whose lifetime is controlled by the caller.
package proc

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ExecConfig carries optional execution parameters for an external program.
// The zero value inherits the parent's working directory, environment, and
// standard streams.
type ExecConfig struct {
	// Dir is the working directory for the program.
	Dir string

	// Env replaces the program's environment when non-nil.
	Env []string

	// Stdin, Stdout, and Stderr redirect the program's standard streams.
	// Nil streams are inherited from the parent process.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// PipeStdout captures the program's standard output as a pipe readable
	// through Handle.Stdout. Only meaningful for Start; overrides Stdout.
	PipeStdout bool

	// PipeStdin attaches a pipe to the program's standard input so the
	// process does not see EOF immediately. Only meaningful for Start.
	PipeStdin bool

	// OnStart runs after the process has been started, before control
	// returns to the caller. It receives the new process id and is used to
	// enroll the process into a cgroup. An OnStart error stops the process
	// and fails the call.
	OnStart func(pid int) error
}

// CommandError reports an external program that exited with a non-zero
// status, or could not be started at all.
type CommandError struct {
	Path     string
	Args     []string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("command %q exited with status %d", e.cmdline(), e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", e.cmdline(), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) cmdline() string {
	return strings.Join(append([]string{e.Path}, e.Args...), " ")
}

// Handle is a running background process owned by the caller.
type Handle interface {
	// Pid returns the operating-system process id.
	Pid() int

	// Stdout returns the captured standard-output pipe, or nil if the
	// process was started without PipeStdout.
	Stdout() io.Reader

	// Stop requests termination and waits for the process to exit. It is
	// idempotent and tolerates a process that already exited on its own.
	Stop() error

	// Wait blocks until the process exits on its own and returns a
	// CommandError for a non-zero exit status.
	Wait() error

	// String describes the process for progress and teardown reporting.
	String() string
}

// Runner executes external programs. Run blocks until the program exits and
// fails with a CommandError on any non-zero status; Start launches the
// program in the background and hands ownership to the returned Handle.
type Runner interface {
	Run(argv []string, cfg *ExecConfig) error
	Start(argv []string, cfg *ExecConfig) (Handle, error)
}

// OSRunner is the Runner backed by the operating system.
type OSRunner struct{}

var _ Runner = OSRunner{}

func (OSRunner) Run(argv []string, cfg *ExecConfig) error {
	cmd, err := newCmd(argv, cfg)
	if err != nil {
		return err
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return &CommandError{Path: argv[0], Args: argv[1:], Err: err}
	}
	if err := runOnStart(cmd, cfg); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		return wrapWaitError(argv, err)
	}
	return nil
}

func (OSRunner) Start(argv []string, cfg *ExecConfig) (Handle, error) {
	cmd, err := newCmd(argv, cfg)
	if err != nil {
		return nil, err
	}

	d := &Daemon{cmd: cmd, argv: argv}
	if cfg != nil && cfg.PipeStdout {
		cmd.Stdout = nil
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, &CommandError{Path: argv[0], Args: argv[1:], Err: err}
		}
		d.stdout = stdout
	}
	if cfg != nil && cfg.PipeStdin {
		cmd.Stdin = nil
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, &CommandError{Path: argv[0], Args: argv[1:], Err: err}
		}
		d.stdin = stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Path: argv[0], Args: argv[1:], Err: err}
	}
	if err := runOnStart(cmd, cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func newCmd(argv []string, cfg *ExecConfig) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, &CommandError{Err: fmt.Errorf("empty argument vector")}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if cfg != nil {
		cmd.Dir = cfg.Dir
		cmd.Env = cfg.Env
		cmd.Stdin = cfg.Stdin
		cmd.Stdout = cfg.Stdout
		cmd.Stderr = cfg.Stderr
	}
	return cmd, nil
}

// runOnStart invokes the OnStart hook. On hook failure the freshly started
// process is killed and reaped so it cannot leak past the failed call.
func runOnStart(cmd *exec.Cmd, cfg *ExecConfig) error {
	if cfg == nil || cfg.OnStart == nil {
		return nil
	}
	if err := cfg.OnStart(cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("on-start hook for %s: %w", cmd.Path, err)
	}
	return nil
}

func wrapWaitError(argv []string, err error) error {
	ce := &CommandError{Path: argv[0], Args: argv[1:], Err: err}
	if exitErr, ok := err.(*exec.ExitError); ok {
		ce.ExitCode = exitErr.ExitCode()
	}
	return ce
}
