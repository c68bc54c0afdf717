// Package scope implements a stacked guaranteed-cleanup resource model:
// every acquired resource is released in reverse acquisition order when the
// scope closes, whether the enclosing run completed or failed partway.
package scope

import (
	"errors"
	"fmt"
)

type entry struct {
	label   string
	release func() error
}

// Stack is an ordered stack of acquired resources. It is not safe for
// concurrent use; the orchestrator runs on a single control thread.
type Stack struct {
	entries []entry

	// onReleaseError, when set, is invoked for each release failure as it
	// happens, so teardown problems are reported live during the unwind.
	onReleaseError func(label string, err error)

	closed bool
}

// New creates an empty resource stack. onReleaseError may be nil.
func New(onReleaseError func(label string, err error)) *Stack {
	return &Stack{onReleaseError: onReleaseError}
}

// Push registers a resource's release action. The label identifies the
// resource in teardown reports.
func (s *Stack) Push(label string, release func() error) {
	s.entries = append(s.entries, entry{label: label, release: release})
}

// Len returns the number of resources currently held.
func (s *Stack) Len() int { return len(s.entries) }

// Close releases every held resource in reverse acquisition order. A failing
// release is reported and does not stop the unwind of the remaining stack.
// The returned error joins all release failures. Close is idempotent.
func (s *Stack) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.release(); err != nil {
			if s.onReleaseError != nil {
				s.onReleaseError(e.label, err)
			}
			errs = append(errs, fmt.Errorf("release %s: %w", e.label, err))
		}
	}
	s.entries = nil
	return errors.Join(errs...)
}
