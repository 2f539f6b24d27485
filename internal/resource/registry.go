package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
)

// Config tunes registry behavior.
type Config struct {
	// SlowOpTimeout is advisory: hooks running longer are logged as slow
	// but never cancelled.
	SlowOpTimeout time.Duration `json:"SlowOpTimeout"`
	// MaxDisposePasses bounds the disposal work-list. Defensive limit,
	// not expected to trigger for an acyclic dependency graph.
	MaxDisposePasses int `json:"MaxDisposePasses"`
}

// DefaultConfig returns sensible registry defaults.
func DefaultConfig() Config {
	return Config{
		SlowOpTimeout:    30 * time.Second,
		MaxDisposePasses: 100,
	}
}

type entry struct {
	impl           Manageable
	info           Info
	state          State
	createdAt      time.Time
	lastAccessedAt time.Time
}

// Registry owns the set of managed resources and their dependency graph.
// The resource map and graph are guarded by a single exclusive-writer /
// concurrent-reader lock; queries are safe to call concurrently with any
// mutation. Overlapping lifecycle calls against the same resource id are
// a documented caller contract, not enforced here.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*entry
	deps      map[string]map[string]struct{} // id -> ids it depends on

	emitter       *events.Emitter
	slowOpTimeout time.Duration
	maxPasses     int
}

// NewRegistry creates an empty registry. Hook failures are published as
// resource_error events; a nil emitter discards them.
func NewRegistry(cfg Config, emitter *events.Emitter) *Registry {
	def := DefaultConfig()
	if cfg.SlowOpTimeout <= 0 {
		cfg.SlowOpTimeout = def.SlowOpTimeout
	}
	if cfg.MaxDisposePasses <= 0 {
		cfg.MaxDisposePasses = def.MaxDisposePasses
	}
	return &Registry{
		resources:     make(map[string]*entry),
		deps:          make(map[string]map[string]struct{}),
		emitter:       emitter,
		slowOpTimeout: cfg.SlowOpTimeout,
		maxPasses:     cfg.MaxDisposePasses,
	}
}

func (r *Registry) emitResourceError(ctx context.Context, id, op string, err error) {
	r.emitter.Emit(ctx, events.TypeResourceError, map[string]string{
		"id":    id,
		"op":    op,
		"error": err.Error(),
	})
}

// Register adds a resource under the id reported by impl.Describe().
// All dependencies must already be registered and the new edges must not
// create a cycle; on any failure the graph is left unchanged.
func (r *Registry) Register(impl Manageable, dependencies ...string) error {
	info := impl.Describe()
	if info.ID == "" {
		return fmt.Errorf("resource description has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[info.ID]; exists {
		return fmt.Errorf("resource %s: %w", info.ID, ErrAlreadyRegistered)
	}

	var missing []string
	for _, dep := range dependencies {
		if _, ok := r.resources[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &DependencyNotMetError{ID: info.ID, Missing: missing}
	}

	for _, dep := range dependencies {
		if path := r.pathLocked(dep, info.ID); path != nil {
			return &CircularDependencyError{ID: info.ID, Via: dep, Path: path}
		}
	}

	now := time.Now()
	r.resources[info.ID] = &entry{
		impl:           impl,
		info:           info,
		state:          StateUninitialized,
		createdAt:      now,
		lastAccessedAt: now,
	}
	set := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		set[dep] = struct{}{}
	}
	r.deps[info.ID] = set

	log := logger.WithComponent("registry")
	log.Info().
		Str("id", info.ID).
		Str("kind", string(info.Kind)).
		Strs("depends_on", dependencies).
		Msg("Resource registered")
	return nil
}

// AddDependency inserts an edge from id to dep after registration.
// The edge is rejected if it would create a cycle.
func (r *Registry) AddDependency(id, dep string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[id]; !ok {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	if _, ok := r.resources[dep]; !ok {
		return &DependencyNotMetError{ID: id, Missing: []string{dep}}
	}
	if path := r.pathLocked(dep, id); path != nil {
		return &CircularDependencyError{ID: id, Via: dep, Path: path}
	}
	if r.deps[id] == nil {
		r.deps[id] = make(map[string]struct{})
	}
	r.deps[id][dep] = struct{}{}
	return nil
}

// pathLocked returns the dependency path from "from" to "to" if "to" is
// reachable, nil otherwise. Depth-first; the graph is small.
func (r *Registry) pathLocked(from, to string) []string {
	if from == to {
		return []string{from}
	}
	visited := make(map[string]bool)
	var walk func(cur string, trail []string) []string
	walk = func(cur string, trail []string) []string {
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		trail = append(trail, cur)
		if cur == to {
			out := make([]string, len(trail))
			copy(out, trail)
			return out
		}
		for dep := range r.deps[cur] {
			if found := walk(dep, trail); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(from, nil)
}

// Initialize brings id to Ready, initializing every not-yet-initialized
// transitive dependency first. The id itself must be Uninitialized. A
// hook failure leaves that resource in Error and is returned to the
// caller; nothing is retried.
func (r *Registry) Initialize(ctx context.Context, id string) error {
	r.mu.RLock()
	e, ok := r.resources[id]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	if e.state != StateUninitialized {
		st := e.state
		r.mu.RUnlock()
		return &InvalidStateError{ID: id, State: st, Op: "initialize"}
	}
	order, err := r.initOrderLocked(id)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, cur := range order {
		if err := r.initOne(ctx, cur); err != nil {
			return err
		}
	}
	return nil
}

// initOrderLocked computes a dependency-first initialization order ending
// with id. Registration guaranteed acyclicity, so the walk terminates.
func (r *Registry) initOrderLocked(id string) ([]string, error) {
	var order []string
	visited := make(map[string]bool)
	var visit func(cur string) error
	visit = func(cur string) error {
		if visited[cur] {
			return nil
		}
		visited[cur] = true

		e, ok := r.resources[cur]
		if !ok {
			return fmt.Errorf("resource %s: %w", cur, ErrNotFound)
		}
		switch e.state {
		case StateReady, StateActive:
			return nil // already initialized, nothing to order
		case StateUninitialized:
		default:
			return &InvalidStateError{ID: cur, State: e.state, Op: "initialize"}
		}

		deps := make([]string, 0, len(r.deps[cur]))
		for dep := range r.deps[cur] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		order = append(order, cur)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return order, nil
}

// initOne runs the Initialize hook for a single resource. The hook runs
// outside the registry lock so queries stay responsive.
func (r *Registry) initOne(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.resources[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	switch e.state {
	case StateReady, StateActive:
		r.mu.Unlock()
		return nil
	case StateUninitialized:
	default:
		st := e.state
		r.mu.Unlock()
		return &InvalidStateError{ID: id, State: st, Op: "initialize"}
	}
	e.state = StateInitializing
	impl := e.impl
	r.mu.Unlock()

	log := logger.WithComponent("registry")
	start := time.Now()
	slow := time.AfterFunc(r.slowOpTimeout, func() {
		log.Warn().
			Str("id", id).
			Dur("timeout", r.slowOpTimeout).
			Msg("Initialize hook still running past advisory timeout")
	})
	err := impl.Initialize(ctx)
	slow.Stop()

	r.mu.Lock()
	if cur, ok := r.resources[id]; ok {
		if err != nil {
			cur.state = StateError
		} else {
			cur.state = StateReady
			cur.lastAccessedAt = time.Now()
		}
	}
	r.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Resource initialization failed")
		r.emitResourceError(ctx, id, "initialize", err)
		return &InitializationError{ID: id, Err: err}
	}
	log.Debug().Str("id", id).Dur("duration", time.Since(start)).Msg("Resource initialized")
	return nil
}

// Activate transitions a Ready resource to Active. Dependencies are not
// required to be Active themselves; only initialization enforces
// dependency order.
func (r *Registry) Activate(id string) error {
	return r.toggle(id, StateReady, StateActive, "activate")
}

// Deactivate transitions an Active resource back to Ready.
func (r *Registry) Deactivate(id string) error {
	return r.toggle(id, StateActive, StateReady, "deactivate")
}

func (r *Registry) toggle(id string, from, to State, op string) error {
	r.mu.Lock()
	e, ok := r.resources[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	if e.state != from {
		st := e.state
		r.mu.Unlock()
		return &InvalidStateError{ID: id, State: st, Op: op}
	}
	impl := e.impl
	r.mu.Unlock()

	var err error
	if op == "activate" {
		err = impl.Activate()
	} else {
		err = impl.Deactivate()
	}
	if err != nil {
		log := logger.WithComponent("registry")
		log.Error().Err(err).Str("id", id).Str("op", op).Msg("Hook failed")
		r.emitResourceError(context.Background(), id, op, err)
		return fmt.Errorf("resource %s: %s failed: %w", id, op, err)
	}

	r.mu.Lock()
	if cur, ok := r.resources[id]; ok && cur.state == from {
		cur.state = to
		cur.lastAccessedAt = time.Now()
	}
	r.mu.Unlock()
	return nil
}

// Dispose tears down id and, first, everything that depends on it.
//
// The algorithm is deliberately iterative with a bounded work-list so a
// corrupted (cyclic) dependency set cannot recurse the stack or spin
// forever: dependents are pushed ahead of the candidate, the candidate is
// re-queued at the back, and a pass counter aborts with
// DisposalDepthExceededError when the bound is hit.
func (r *Registry) Dispose(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.resources[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}

	log := logger.WithComponent("registry")
	worklist := []string{id}
	processed := make(map[string]bool)
	var firstErr error

	for passes := 0; len(worklist) > 0; {
		passes++
		if passes > r.maxPasses {
			return &DisposalDepthExceededError{
				ID:         id,
				Passes:     r.maxPasses,
				Unresolved: dedupe(worklist),
			}
		}

		cand := worklist[0]
		worklist = worklist[1:]
		if processed[cand] {
			continue
		}

		dependents := r.dependentsOf(cand, processed)
		if len(dependents) > 0 {
			// Dependents tear down first: push them ahead, re-queue the
			// candidate at the back.
			next := make([]string, 0, len(dependents)+len(worklist)+1)
			next = append(next, dependents...)
			next = append(next, worklist...)
			next = append(next, cand)
			worklist = next
			continue
		}

		if err := r.disposeOne(ctx, cand); err != nil {
			log.Error().Err(err).Str("id", cand).Msg("Resource disposal failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		processed[cand] = true
	}
	return firstErr
}

// dependentsOf returns the not-yet-processed resources that still declare
// a dependency on id, sorted for deterministic teardown.
func (r *Registry) dependentsOf(id string, processed map[string]bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for other, set := range r.deps {
		if other == id || processed[other] {
			continue
		}
		if _, ok := set[id]; ok {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out
}

// disposeOne runs the Dispose hook for a single resource and removes it
// and its edges from the registry. A hook failure leaves the resource in
// Error, still registered for diagnostics.
func (r *Registry) disposeOne(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.resources[id]
	if !ok {
		r.mu.Unlock()
		return nil // already gone
	}
	if e.state == StateDisposing || e.state == StateDisposed {
		r.mu.Unlock()
		return nil
	}
	e.state = StateDisposing
	impl := e.impl
	r.mu.Unlock()

	log := logger.WithComponent("registry")
	slow := time.AfterFunc(r.slowOpTimeout, func() {
		log.Warn().
			Str("id", id).
			Dur("timeout", r.slowOpTimeout).
			Msg("Dispose hook still running past advisory timeout")
	})
	err := impl.Dispose(ctx)
	slow.Stop()

	r.mu.Lock()
	cur, ok := r.resources[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		cur.state = StateError
		r.mu.Unlock()
		r.emitResourceError(ctx, id, "dispose", err)
		return &DisposalError{ID: id, Err: err}
	}
	cur.state = StateDisposed
	delete(r.resources, id)
	delete(r.deps, id)
	for _, set := range r.deps {
		delete(set, id)
	}
	r.mu.Unlock()
	log.Debug().Str("id", id).Msg("Resource disposed")
	return nil
}

// DisposeAll disposes every registered resource, tolerating individual
// failures. Returns the number of resources no longer registered.
func (r *Registry) DisposeAll(ctx context.Context) int {
	before := len(r.IDs())
	log := logger.WithComponent("registry")

	for _, id := range r.IDs() {
		r.mu.RLock()
		_, still := r.resources[id]
		r.mu.RUnlock()
		if !still {
			continue // torn down as a dependent of an earlier id
		}
		if err := r.Dispose(ctx, id); err != nil {
			log.Error().Err(err).Str("id", id).Msg("Disposal during shutdown failed")
		}
	}
	return before - len(r.IDs())
}

// DisposeIdle disposes resources that are not Active, have no remaining
// dependents, and have not been touched within the idle window. Used by
// memory-pressure cleanup. Returns the count and estimated bytes freed.
func (r *Registry) DisposeIdle(ctx context.Context, window time.Duration) (int, uint64) {
	cutoff := time.Now().Add(-window)

	r.mu.RLock()
	var candidates []string
	bytesByID := make(map[string]uint64)
	for id, e := range r.resources {
		if e.state == StateActive || e.state == StateDisposing || e.state == StateInitializing {
			continue
		}
		if e.lastAccessedAt.After(cutoff) {
			continue
		}
		candidates = append(candidates, id)
		bytesByID[id] = e.info.EstimatedBytes
	}
	r.mu.RUnlock()
	sort.Strings(candidates)

	log := logger.WithComponent("registry")
	disposed := 0
	var freed uint64
	for _, id := range candidates {
		// Skip anything something else still depends on; eviction must
		// not force in-use dependents down.
		if len(r.dependentsOf(id, nil)) > 0 {
			continue
		}
		if err := r.Dispose(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Idle disposal failed")
			continue
		}
		disposed++
		freed += bytesByID[id]
	}
	return disposed, freed
}

// Get returns a snapshot of a registered resource.
func (r *Registry) Get(id string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.resources[id]
	if !ok {
		return Status{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return r.statusLocked(id, e), nil
}

// Describe returns the resource's live self-description.
func (r *Registry) Describe(id string) (Info, error) {
	r.mu.RLock()
	e, ok := r.resources[id]
	r.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return e.impl.Describe(), nil
}

// List returns snapshots of all registered resources, sorted by id.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.resources))
	for id, e := range r.resources {
		out = append(out, r.statusLocked(id, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByKind returns snapshots of resources of the given kind.
func (r *Registry) ListByKind(kind Kind) []Status {
	var out []Status
	for _, st := range r.List() {
		if st.Kind == kind {
			out = append(out, st)
		}
	}
	return out
}

// ListByState returns snapshots of resources in the given state.
func (r *Registry) ListByState(state State) []Status {
	var out []Status
	for _, st := range r.List() {
		if st.State == state {
			out = append(out, st)
		}
	}
	return out
}

// IDs returns all registered resource ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.resources))
	for id := range r.resources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

func (r *Registry) statusLocked(id string, e *entry) Status {
	deps := make([]string, 0, len(r.deps[id]))
	for dep := range r.deps[id] {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	var meta map[string]string
	if len(e.info.Metadata) > 0 {
		meta = make(map[string]string, len(e.info.Metadata))
		for k, v := range e.info.Metadata {
			meta[k] = v
		}
	}
	return Status{
		ID:             id,
		Kind:           e.info.Kind,
		State:          e.state,
		Description:    e.info.Description,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessedAt,
		EstimatedBytes: e.info.EstimatedBytes,
		DependsOn:      deps,
		Metadata:       meta,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
