package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below wrap these so callers can use
// errors.Is for classification and errors.As for detail.
var (
	ErrAlreadyRegistered = errors.New("resource already registered")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidState      = errors.New("invalid resource state")
)

// DependencyNotMetError reports dependencies that were not registered
// before the dependent resource.
type DependencyNotMetError struct {
	ID      string
	Missing []string
}

func (e *DependencyNotMetError) Error() string {
	return fmt.Sprintf("resource %s: unregistered dependencies: %s", e.ID, strings.Join(e.Missing, ", "))
}

// CircularDependencyError reports an edge that would create a cycle.
type CircularDependencyError struct {
	ID   string
	Via  string
	Path []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("resource %s: dependency on %s creates cycle: %s", e.ID, e.Via, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("resource %s: dependency on %s creates cycle", e.ID, e.Via)
}

// InvalidStateError reports an operation attempted against a resource in
// a state that does not permit it.
type InvalidStateError struct {
	ID    string
	State State
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("resource %s: cannot %s in state %s", e.ID, e.Op, e.State)
}

// Unwrap makes errors.Is(err, ErrInvalidState) work.
func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InitializationError wraps a failure of a resource's Initialize hook.
type InitializationError struct {
	ID  string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("resource %s: initialization failed: %v", e.ID, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// DisposalError wraps a failure of a resource's Dispose hook.
type DisposalError struct {
	ID  string
	Err error
}

func (e *DisposalError) Error() string {
	return fmt.Sprintf("resource %s: disposal failed: %v", e.ID, e.Err)
}

func (e *DisposalError) Unwrap() error { return e.Err }

// DisposalDepthExceededError reports a disposal work-list that did not
// drain within the configured pass bound. This is a defensive limit; it
// only triggers if the dependency data has been corrupted into a cycle.
type DisposalDepthExceededError struct {
	ID         string
	Passes     int
	Unresolved []string
}

func (e *DisposalDepthExceededError) Error() string {
	return fmt.Sprintf("resource %s: disposal exceeded %d passes, unresolved: %s",
		e.ID, e.Passes, strings.Join(e.Unresolved, ", "))
}
