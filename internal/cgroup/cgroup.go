// Package cgroup manages cgroup-v1 control groups through their filesystem
// contract: a per-controller subtree under the hierarchy root, named control
// files read and written as text, and a tasks file for membership.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultRoot is the conventional cgroup-v1 hierarchy mount point.
const DefaultRoot = "/sys/fs/cgroup"

// cgroup2SuperMagic identifies the unified v2 hierarchy on a statfs.
const cgroup2SuperMagic = 0x63677270

// Error reports a refused cgroup filesystem operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cgroup %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CheckHierarchy fails when root is a unified cgroup-v2 mount, which has no
// per-controller subtrees or tasks files. Any other filesystem passes; a
// missing controller directory surfaces later as a create failure.
func CheckHierarchy(root string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return &Error{Op: "statfs", Path: root, Err: err}
	}
	if st.Type == cgroup2SuperMagic {
		return &Error{Op: "statfs", Path: root,
			Err: fmt.Errorf("unified cgroup v2 hierarchy mounted; v1 controllers required")}
	}
	return nil
}

// Group is one control group under a hierarchy root, identified by its
// controller-relative path (e.g. "cpu/hwsim_perf").
type Group struct {
	root string
	path string
}

// Create opens the group at root/rel, creating the directory hierarchy if
// absent. Creating an already-existing group is not an error.
func Create(root, rel string) (*Group, error) {
	g := &Group{root: root, path: filepath.Join(root, rel)}
	if err := os.MkdirAll(g.path, 0o755); err != nil {
		return nil, &Error{Op: "create", Path: g.path, Err: err}
	}
	return g, nil
}

// Path returns the group's absolute directory path.
func (g *Group) Path() string { return g.path }

// Set writes a single named control file.
func (g *Group) Set(control, value string) error {
	p := filepath.Join(g.path, control)
	if err := os.WriteFile(p, []byte(value), 0o644); err != nil {
		return &Error{Op: "write", Path: p, Err: err}
	}
	return nil
}

// Get reads a single named control file.
func (g *Group) Get(control string) (string, error) {
	p := filepath.Join(g.path, control)
	b, err := os.ReadFile(p)
	if err != nil {
		return "", &Error{Op: "read", Path: p, Err: err}
	}
	return string(b), nil
}

// AddTask enrolls a process id as a member of the group.
func (g *Group) AddTask(pid int) error {
	return g.Set("tasks", strconv.Itoa(pid))
}

// AddSelf enrolls the calling process.
func (g *Group) AddSelf() error {
	return g.AddTask(os.Getpid())
}

// Parent returns the group one level up the hierarchy.
func (g *Group) Parent() *Group {
	return &Group{root: g.root, path: filepath.Dir(g.path)}
}

// Destroy removes the group. A group cannot be removed while it still has
// member tasks or child groups, so the calling process is migrated to the
// parent group first if it is still enrolled; any other residual member or
// nested group makes removal fail.
func (g *Group) Destroy() error {
	tasks, err := g.Get("tasks")
	if err == nil {
		self := strconv.Itoa(os.Getpid())
		for _, pid := range strings.Fields(tasks) {
			if pid == self {
				if err := g.Parent().AddTask(os.Getpid()); err != nil {
					return err
				}
				break
			}
		}
	}

	// cgroupfs refuses to unlink control files and removes them itself
	// when the group directory goes away; on an ordinary filesystem the
	// unlinks empty the directory so the rmdir below can succeed.
	if entries, err := os.ReadDir(g.path); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				_ = os.Remove(filepath.Join(g.path, e.Name()))
			}
		}
	}

	if err := os.Remove(g.path); err != nil {
		return &Error{Op: "remove", Path: g.path, Err: err}
	}
	return nil
}
