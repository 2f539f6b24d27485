// Package resource provides the registry that owns long-lived service
// objects, their dependency graph, and their lifecycle state machines.
package resource

import (
	"context"
	"time"
)

// Kind classifies a managed resource by the subsystem it belongs to.
type Kind string

// Resource kinds.
const (
	KindAudio       Kind = "audio"
	KindRecognition Kind = "recognition"
	KindFile        Kind = "file"
	KindNetwork     Kind = "network"
	KindTimer       Kind = "timer"
	KindObserver    Kind = "observer"
	KindMemory      Kind = "memory"
	KindUI          Kind = "ui"
	KindSystem      Kind = "system"
)

// State is the lifecycle state of a managed resource.
//
// Legal transitions:
//
//	Uninitialized → Initializing → Ready ⇄ Active
//	Ready/Active/Uninitialized/Error → Disposing → Disposed
//
// Error is reachable from Initializing and Disposing on hook failure.
// Disposed and Error are terminal; a resource in Error can only be retried
// by disposing and re-registering it.
type State string

// Resource states.
const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateActive        State = "active"
	StateDisposing     State = "disposing"
	StateDisposed      State = "disposed"
	StateError         State = "error"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateDisposed || s == StateError
}

// Manageable is implemented by services that want their lifecycle managed
// by the Registry. Initialize and Dispose may take arbitrary time; Activate
// and Deactivate must be fast and synchronous.
//
// The Registry does not serialize overlapping lifecycle calls for the same
// resource id; callers must not issue concurrent Initialize/Activate/
// Deactivate/Dispose calls against one id.
type Manageable interface {
	Initialize(ctx context.Context) error
	Activate() error
	Deactivate() error
	Dispose(ctx context.Context) error
	Describe() Info
}

// Info is the self-description a Manageable provides at registration.
type Info struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	Description    string            `json:"description"`
	EstimatedBytes uint64            `json:"estimated_bytes"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Status is a read-only snapshot of a registered resource.
type Status struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	State          State             `json:"state"`
	Description    string            `json:"description"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	EstimatedBytes uint64            `json:"estimated_bytes"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
