// Package events provides advisory telemetry for the runtime: pressure
// changes, usage spikes, suspected leaks, cleanup results, and lifecycle
// phase changes are published to a configurable sink.
package events

import (
	"context"
	"time"
)

// Type identifies the event category.
type Type string

// Event types published by the runtime.
const (
	TypeWarningLevelChanged Type = "warning_level_changed"
	TypeUsageSpike          Type = "usage_spike"
	TypePossibleLeak        Type = "possible_leak"
	TypeCleanupCompleted    Type = "cleanup_completed"
	TypePhaseChanged        Type = "phase_changed"
	TypeResourceError       Type = "resource_error"
)

// Event is the common wrapper for all published events.
type Event struct {
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	RuntimeID string            `json:"runtime_id,omitempty"`
	Hostname  string            `json:"hostname,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sink is the destination for published events.
type Sink interface {
	// Publish transmits a single event to the destination.
	Publish(ctx context.Context, ev *Event) error

	// Close releases any resources held by the sink.
	Close() error
}

// Emitter enriches events with runtime identity and forwards them to a
// sink. A nil Emitter discards events, so components can emit
// unconditionally.
type Emitter struct {
	sink      Sink
	runtimeID string
	hostname  string
}

// NewEmitter creates an emitter bound to the given sink and identity.
func NewEmitter(sink Sink, runtimeID, hostname string) *Emitter {
	return &Emitter{sink: sink, runtimeID: runtimeID, hostname: hostname}
}

// Emit publishes an event of the given type. Publish failures are the
// sink's to log; telemetry never fails the caller.
func (e *Emitter) Emit(ctx context.Context, typ Type, data map[string]string) {
	if e == nil || e.sink == nil {
		return
	}
	_ = e.sink.Publish(ctx, &Event{
		Type:      typ,
		Timestamp: time.Now(),
		RuntimeID: e.runtimeID,
		Hostname:  e.hostname,
		Data:      data,
	})
}

// NopSink discards all events.
type NopSink struct{}

// Publish discards the event.
func (NopSink) Publish(context.Context, *Event) error { return nil }

// Close is a no-op.
func (NopSink) Close() error { return nil }
