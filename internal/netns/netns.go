// Package netns wraps the lifecycle of a named network namespace over the
// ip(8) and iw(8) CLI contracts: creation, device migration, command and
// daemon execution inside the namespace, and deletion.
package netns

import (
	"fmt"

	"github.com/hwsimlab/hwsimperf/internal/hwsim"
	"github.com/hwsimlab/hwsimperf/internal/proc"
)

// Error reports a namespace operation refused by the kernel or its tooling.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("netns %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Namespace is a named isolated network context. Processes started through
// it see only the interfaces that were moved into it.
type Namespace struct {
	Name   string
	runner proc.Runner
}

// Create adds a new network namespace. Creation fails if the name already
// exists or the host does not support network namespaces.
func Create(name string, r proc.Runner) (*Namespace, error) {
	if err := r.Run([]string{"ip", "netns", "add", name}, nil); err != nil {
		return nil, &Error{Op: "create", Name: name, Err: err}
	}
	return &Namespace{Name: name, runner: r}, nil
}

// Delete removes the namespace. Deletion is refused while a process still
// holds it; callers release all processes inside the namespace first.
func (ns *Namespace) Delete() error {
	if err := ns.runner.Run([]string{"ip", "netns", "delete", ns.Name}, nil); err != nil {
		return &Error{Op: "delete", Name: ns.Name, Err: err}
	}
	return nil
}

// MovePhy migrates a radio's physical-layer handle into the namespace. The
// radio's interface is visible only inside the namespace afterwards.
func (ns *Namespace) MovePhy(radio hwsim.Radio) error {
	argv := []string{"iw", "phy", radio.Phy, "set", "netns", "name", ns.Name}
	if err := ns.runner.Run(argv, nil); err != nil {
		return &Error{Op: "move phy " + radio.Phy, Name: ns.Name, Err: err}
	}
	return nil
}

// Run executes a program to completion inside the namespace.
func (ns *Namespace) Run(argv []string, cfg *proc.ExecConfig) error {
	return ns.runner.Run(ns.wrap(argv), cfg)
}

// StartDaemon launches a background program inside the namespace. The
// daemon's network view is limited to the namespace's interfaces.
func (ns *Namespace) StartDaemon(argv []string, cfg *proc.ExecConfig) (proc.Handle, error) {
	return ns.runner.Start(ns.wrap(argv), cfg)
}

func (ns *Namespace) wrap(argv []string) []string {
	return append([]string{"ip", "netns", "exec", ns.Name}, argv...)
}
