package lifecycle

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
	"resourceruntime/internal/resource"
	"resourceruntime/internal/store"
)

// Cleaner triggers memory cleanup. Satisfied by *monitor.Monitor.
type Cleaner interface {
	RequestCleanup(ctx context.Context, force bool) bool
}

// Config tunes the coordinator.
type Config struct {
	// CriticalKinds are resource kinds the runtime cannot function
	// without: they stay active in the background, are restored on wake,
	// and are validated after launch.
	CriticalKinds []resource.Kind
}

// Coordinator owns the lifecycle phase state machine. Transition
// suboperations are isolated: a failing step is logged and counted but
// never aborts the remaining steps, so every transition reaches a stable
// phase.
type Coordinator struct {
	registry *resource.Registry
	cleaner  Cleaner
	store    store.Store
	emitter  *events.Emitter
	critical map[resource.Kind]bool

	mu           sync.Mutex
	phase        Phase
	services     []Service
	sleptActive  []string // ids deactivated by the last sleep transition
	stepFailures int
}

// New creates a Coordinator in the Launching phase.
func New(registry *resource.Registry, cleaner Cleaner, st store.Store, emitter *events.Emitter, cfg Config) *Coordinator {
	critical := make(map[resource.Kind]bool, len(cfg.CriticalKinds))
	for _, k := range cfg.CriticalKinds {
		critical[k] = true
	}
	return &Coordinator{
		registry: registry,
		cleaner:  cleaner,
		store:    st,
		emitter:  emitter,
		critical: critical,
		phase:    PhaseLaunching,
	}
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// StepFailures returns the number of orchestration or service callback
// failures tolerated so far. Diagnostic only.
func (c *Coordinator) StepFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stepFailures
}

// LastSlept returns the resource ids deactivated by the most recent
// sleep transition. Diagnostic only.
func (c *Coordinator) LastSlept() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sleptActive))
	copy(out, c.sleptActive)
	return out
}

// RegisterService adds a lifecycle service to the notification list.
func (c *Coordinator) RegisterService(s Service) {
	c.mu.Lock()
	c.services = append(c.services, s)
	c.mu.Unlock()
}

// HandleEvent is the single funnel for lifecycle signals, organic or
// manually triggered; both paths behave identically.
func (c *Coordinator) HandleEvent(ctx context.Context, ev Event) {
	log := logger.WithComponent("lifecycle")
	log.Info().Str("event", string(ev)).Str("phase", string(c.Phase())).Msg("Handling lifecycle event")

	switch ev {
	case EventLaunched:
		if _, ok := c.transitionTo(ctx, PhaseActive, PhaseLaunching); ok {
			c.launchResources(ctx)
			c.validateCritical()
			c.notify(ctx, "OnLaunched", Service.OnLaunched)
		}
	case EventForeground:
		if _, ok := c.transitionTo(ctx, PhaseActive, PhaseBackground); ok {
			c.notify(ctx, "OnWillForeground", Service.OnWillForeground)
			c.restoreCritical()
			c.reloadSnapshot(ctx)
		}
	case EventBackground:
		if _, ok := c.transitionTo(ctx, PhaseBackground, PhaseActive); ok {
			c.deactivateNonCritical()
			if c.cleaner != nil {
				c.cleaner.RequestCleanup(ctx, false)
			}
			c.persistSnapshot(ctx)
			c.notify(ctx, "OnDidBackground", Service.OnDidBackground)
		}
	case EventSleep:
		if _, ok := c.transitionTo(ctx, PhaseSleeping, PhaseActive); ok {
			c.notify(ctx, "OnSleep", Service.OnSleep)
			c.pauseActive()
		}
	case EventWake:
		if _, ok := c.transitionTo(ctx, PhaseActive, PhaseSleeping); ok {
			c.restoreCritical()
			c.notify(ctx, "OnWake", Service.OnWake)
		}
	case EventLowMemory:
		// No phase change: notify services, then force a cleanup.
		c.notify(ctx, "OnLowMemory", Service.OnLowMemory)
		if c.cleaner != nil {
			c.cleaner.RequestCleanup(ctx, true)
		}
	case EventTerminate:
		c.terminate(ctx)
	default:
		log.Warn().Str("event", string(ev)).Msg("Unknown lifecycle event ignored")
	}
}

// transitionTo moves to target if the current phase is one of the allowed
// origins and the pair is legal. Illegal requests are logged as
// unexpected and ignored.
func (c *Coordinator) transitionTo(ctx context.Context, target Phase, origins ...Phase) (Phase, bool) {
	log := logger.WithComponent("lifecycle")

	c.mu.Lock()
	from := c.phase
	allowed := legal(from, target)
	if allowed && len(origins) > 0 {
		allowed = false
		for _, o := range origins {
			if from == o {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		c.mu.Unlock()
		log.Warn().
			Str("from", string(from)).
			Str("to", string(target)).
			Msg("Unexpected phase transition ignored")
		return from, false
	}
	c.phase = target
	c.mu.Unlock()

	log.Info().Str("from", string(from)).Str("to", string(target)).Msg("Phase changed")
	c.emitter.Emit(ctx, events.TypePhaseChanged, map[string]string{
		"from": string(from),
		"to":   string(target),
	})
	return from, true
}

// terminate runs the absorbing final sequence from any phase.
func (c *Coordinator) terminate(ctx context.Context) {
	if _, ok := c.transitionTo(ctx, PhaseTerminating); !ok {
		return
	}

	c.notify(ctx, "OnWillTerminate", Service.OnWillTerminate)
	c.persistSnapshot(ctx)

	disposed := c.registry.DisposeAll(ctx)
	log := logger.WithComponent("lifecycle")
	log.Info().
		Int("disposed", disposed).
		Int("remaining", c.registry.Len()).
		Msg("Registry drained for termination")

	c.mu.Lock()
	c.services = nil
	c.mu.Unlock()
}

// launchResources initializes every Uninitialized resource. Failures are
// isolated per resource.
func (c *Coordinator) launchResources(ctx context.Context) {
	log := logger.WithComponent("lifecycle")
	for _, st := range c.registry.ListByState(resource.StateUninitialized) {
		if err := c.registry.Initialize(ctx, st.ID); err != nil {
			log.Error().Err(err).Str("id", st.ID).Msg("Launch initialization failed")
			c.countFailure()
		}
	}
}

// validateCritical warns when a critical kind has no Ready or Active
// instance after launch. A warning, not an error: the runtime still
// reaches Active.
func (c *Coordinator) validateCritical() {
	log := logger.WithComponent("lifecycle")
	for kind := range c.critical {
		healthy := false
		for _, st := range c.registry.ListByKind(kind) {
			if st.State == resource.StateReady || st.State == resource.StateActive {
				healthy = true
				break
			}
		}
		if !healthy {
			log.Warn().Str("kind", string(kind)).Msg("No ready instance of critical resource kind after launch")
		}
	}
}

// deactivateNonCritical deactivates every Active resource whose kind is
// not critical.
func (c *Coordinator) deactivateNonCritical() {
	log := logger.WithComponent("lifecycle")
	for _, st := range c.registry.ListByState(resource.StateActive) {
		if c.critical[st.Kind] {
			continue
		}
		if err := c.registry.Deactivate(st.ID); err != nil {
			log.Error().Err(err).Str("id", st.ID).Msg("Background deactivation failed")
			c.countFailure()
		}
	}
}

// pauseActive deactivates every Active resource, remembering the set so
// wake can restore critical ones.
func (c *Coordinator) pauseActive() {
	log := logger.WithComponent("lifecycle")
	var slept []string
	for _, st := range c.registry.ListByState(resource.StateActive) {
		if err := c.registry.Deactivate(st.ID); err != nil {
			log.Error().Err(err).Str("id", st.ID).Msg("Sleep deactivation failed")
			c.countFailure()
			continue
		}
		slept = append(slept, st.ID)
	}
	c.mu.Lock()
	c.sleptActive = slept
	c.mu.Unlock()
}

// restoreCritical re-activates Ready resources of critical kinds. Used on
// both wake and foreground.
func (c *Coordinator) restoreCritical() {
	log := logger.WithComponent("lifecycle")
	for _, st := range c.registry.ListByState(resource.StateReady) {
		if !c.critical[st.Kind] {
			continue
		}
		if err := c.registry.Activate(st.ID); err != nil {
			log.Error().Err(err).Str("id", st.ID).Msg("Restore activation failed")
			c.countFailure()
		}
	}
}

// notify calls one callback on every registered service, sequentially,
// isolating per-service failures.
func (c *Coordinator) notify(ctx context.Context, name string, call func(Service, context.Context) error) {
	c.mu.Lock()
	services := make([]Service, len(c.services))
	copy(services, c.services)
	c.mu.Unlock()

	log := logger.WithComponent("lifecycle")
	for _, s := range services {
		if err := call(s, ctx); err != nil {
			log.Error().Err(err).Str("callback", name).Msg("Lifecycle service callback failed")
			c.countFailure()
		}
	}
}

func (c *Coordinator) countFailure() {
	c.mu.Lock()
	c.stepFailures++
	c.mu.Unlock()
}

// persistSnapshot hands an opaque key-value snapshot to the external
// store. Counts, ids, and timestamps only; never binary resource state.
func (c *Coordinator) persistSnapshot(ctx context.Context) {
	if c.store == nil {
		return
	}
	log := logger.WithComponent("lifecycle")

	snap := map[string]string{
		store.SchemaVersionKey: store.SchemaVersion,
		"phase":                string(c.Phase()),
		"savedAt":              time.Now().UTC().Format(time.RFC3339),
	}
	statuses := c.registry.List()
	snap["resourceCount"] = strconv.Itoa(len(statuses))
	counts := make(map[resource.State]int)
	var ids []string
	for _, st := range statuses {
		counts[st.State]++
		ids = append(ids, st.ID)
	}
	for state, n := range counts {
		snap["count."+string(state)] = strconv.Itoa(n)
	}
	snap["ids"] = strings.Join(ids, ",")

	if err := c.store.Save(ctx, snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist snapshot")
		c.countFailure()
		return
	}
	log.Info().Int("keys", len(snap)).Msg("Snapshot persisted")
}

// reloadSnapshot reads the persisted snapshot back, if present. Unknown
// keys are ignored; missing keys fall back to defaults. The snapshot is
// diagnostic state, so reloading only surfaces it in the log.
func (c *Coordinator) reloadSnapshot(ctx context.Context) {
	if c.store == nil {
		return
	}
	log := logger.WithComponent("lifecycle")

	snap, err := c.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload snapshot")
		c.countFailure()
		return
	}
	if snap == nil {
		log.Debug().Msg("No persisted snapshot to reload")
		return
	}

	version := snap[store.SchemaVersionKey]
	if version == "" {
		version = "unknown"
	}
	log.Info().
		Str("schema_version", version).
		Str("saved_at", snap["savedAt"]).
		Str("saved_phase", snap["phase"]).
		Str("resource_count", snap["resourceCount"]).
		Msg("Snapshot reloaded")
}
