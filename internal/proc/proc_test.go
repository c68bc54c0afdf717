package proc

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	var r OSRunner
	if err := r.Run([]string{"true"}, nil); err != nil {
		t.Fatalf("Run(true) error = %v", err)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	var r OSRunner
	err := r.Run([]string{"false"}, nil)
	if err == nil {
		t.Fatal("Run(false) error = nil, want CommandError")
	}

	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("Run(false) error = %T, want *CommandError", err)
	}
	if ce.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", ce.ExitCode)
	}
	if ce.Path != "false" {
		t.Errorf("Path = %q, want false", ce.Path)
	}
}

func TestRun_MissingProgram(t *testing.T) {
	var r OSRunner
	err := r.Run([]string{"hwsimperf-no-such-program"}, nil)
	if err == nil {
		t.Fatal("Run() error = nil for missing program")
	}
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T, want *CommandError", err)
	}
}

func TestRun_StdoutRedirect(t *testing.T) {
	var r OSRunner
	var buf bytes.Buffer
	if err := r.Run([]string{"echo", "hello"}, &ExecConfig{Stdout: &buf}); err != nil {
		t.Fatalf("Run(echo) error = %v", err)
	}
	if got := buf.String(); got != "hello\n" {
		t.Errorf("stdout = %q, want %q", got, "hello\n")
	}
}

func TestStart_StopTerminates(t *testing.T) {
	var r OSRunner
	h, err := r.Start([]string{"sleep", "60"}, nil)
	if err != nil {
		t.Fatalf("Start(sleep) error = %v", err)
	}
	if h.Pid() <= 0 {
		t.Errorf("Pid() = %d, want positive", h.Pid())
	}

	done := make(chan error, 1)
	go func() { done <- h.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestStop_Idempotent(t *testing.T) {
	var r OSRunner
	h, err := r.Start([]string{"sleep", "60"}, nil)
	if err != nil {
		t.Fatalf("Start(sleep) error = %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestStop_AlreadyExited(t *testing.T) {
	var r OSRunner
	h, err := r.Start([]string{"true"}, nil)
	if err != nil {
		t.Fatalf("Start(true) error = %v", err)
	}
	// Give the short-lived helper time to exit on its own.
	time.Sleep(200 * time.Millisecond)
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() after self-exit error = %v", err)
	}
}

func TestWait_NonZeroExit(t *testing.T) {
	var r OSRunner
	h, err := r.Start([]string{"false"}, nil)
	if err != nil {
		t.Fatalf("Start(false) error = %v", err)
	}
	werr := h.Wait()
	var ce *CommandError
	if !errors.As(werr, &ce) {
		t.Fatalf("Wait() error = %T (%v), want *CommandError", werr, werr)
	}
	if ce.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", ce.ExitCode)
	}
}

func TestStart_PipeStdout(t *testing.T) {
	var r OSRunner
	h, err := r.Start([]string{"echo", "line"}, &ExecConfig{PipeStdout: true})
	if err != nil {
		t.Fatalf("Start(echo) error = %v", err)
	}
	buf := make([]byte, 16)
	n, _ := h.Stdout().Read(buf)
	if got := string(buf[:n]); got != "line\n" {
		t.Errorf("piped stdout = %q, want %q", got, "line\n")
	}
	if err := h.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestOnStart_ReceivesPid(t *testing.T) {
	var r OSRunner
	gotPid := 0
	h, err := r.Start([]string{"sleep", "60"}, &ExecConfig{
		OnStart: func(pid int) error {
			gotPid = pid
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	if gotPid != h.Pid() {
		t.Errorf("OnStart pid = %d, want %d", gotPid, h.Pid())
	}
}

func TestOnStart_FailureKillsProcess(t *testing.T) {
	var r OSRunner
	hookErr := errors.New("enrollment refused")
	var pid int
	_, err := r.Start([]string{"sleep", "60"}, &ExecConfig{
		OnStart: func(p int) error {
			pid = p
			return hookErr
		},
	})
	if err == nil {
		t.Fatal("Start() error = nil, want hook failure")
	}
	if !errors.Is(err, hookErr) {
		t.Errorf("error = %v, want wrapped hook error", err)
	}

	// The half-started process must not leak.
	time.Sleep(100 * time.Millisecond)
	if proc, perr := os.FindProcess(pid); perr == nil {
		if serr := proc.Signal(os.Interrupt); serr == nil {
			t.Errorf("process %d still running after hook failure", pid)
		}
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	var r OSRunner
	if err := r.Run(nil, nil); err == nil {
		t.Fatal("Run(nil) error = nil, want error")
	}
}
