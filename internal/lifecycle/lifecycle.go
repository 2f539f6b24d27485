// Package lifecycle maps application and OS lifecycle signals onto
// orchestrated registry operations and notifies registered services.
package lifecycle

import (
	"context"
)

// Phase is the coarse-grained application run state.
type Phase string

// Lifecycle phases. Terminating is absorbing: once entered, no further
// transitions occur.
const (
	PhaseLaunching   Phase = "launching"
	PhaseActive      Phase = "active"
	PhaseBackground  Phase = "background"
	PhaseSleeping    Phase = "sleeping"
	PhaseTerminating Phase = "terminating"
	// PhaseError is reserved for an orchestration failure that leaves the
	// runtime unusable; normal step failures never set it.
	PhaseError Phase = "error"
)

// Event is an external lifecycle signal. OS-observed signals and manual
// triggers (tests, signal simulation) funnel through the same
// Coordinator.HandleEvent path.
type Event string

// Lifecycle events.
const (
	EventLaunched   Event = "launched"
	EventForeground Event = "foreground"
	EventBackground Event = "background"
	EventSleep      Event = "sleep"
	EventWake       Event = "wake"
	EventLowMemory  Event = "low_memory"
	EventTerminate  Event = "terminate"
)

// Service receives direct lifecycle callbacks, independent of and in
// addition to the phase-transition orchestration. Callbacks fire only
// when the coordinator acts on the corresponding event: an event whose
// phase transition is rejected as illegal notifies nobody. For accepted
// events, OnWillForeground, OnWillTerminate, and OnSleep run before the
// orchestration steps so services can prepare; OnLaunched,
// OnDidBackground, and OnWake run after them. OnLowMemory has no phase
// transition and always fires. Notification is sequential with
// per-service error isolation.
type Service interface {
	OnLaunched(ctx context.Context) error
	OnWillForeground(ctx context.Context) error
	OnDidBackground(ctx context.Context) error
	OnWillTerminate(ctx context.Context) error
	OnLowMemory(ctx context.Context) error
	OnSleep(ctx context.Context) error
	OnWake(ctx context.Context) error
}

// legalTransitions lists the only phase pairs a lifecycle event may
// traverse. Everything else is logged as unexpected and ignored.
var legalTransitions = map[Phase]map[Phase]bool{
	PhaseLaunching:  {PhaseActive: true},
	PhaseActive:     {PhaseBackground: true, PhaseSleeping: true},
	PhaseBackground: {PhaseActive: true},
	PhaseSleeping:   {PhaseActive: true},
}

func legal(from, to Phase) bool {
	if to == PhaseTerminating {
		return from != PhaseTerminating
	}
	return legalTransitions[from][to]
}
