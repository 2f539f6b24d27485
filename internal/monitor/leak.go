package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"resourceruntime/internal/config"
	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
)

// TrackedAllocation is one allocation a caller has opted into tracking.
type TrackedAllocation struct {
	ObjectID    string    `json:"object_id"`
	AllocatedAt time.Time `json:"allocated_at"`
	SizeBytes   uint64    `json:"size_bytes"`
	Origin      string    `json:"origin,omitempty"`
}

// LeakDetector keeps a bounded table of tracked allocations and
// periodically reports entries that outlive the leak threshold. It is
// advisory only: it never frees anything itself.
type LeakDetector struct {
	cfg     config.LeakConfig
	clk     clock.Clock
	emitter *events.Emitter

	mu      sync.Mutex
	entries map[string]*TrackedAllocation
	order   []string // insertion order for oldest-first eviction

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLeakDetector creates a LeakDetector. clk may be nil for the wall
// clock.
func NewLeakDetector(cfg config.LeakConfig, emitter *events.Emitter, clk clock.Clock) *LeakDetector {
	def := config.DefaultConfig().Leak
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.LeakThreshold <= 0 {
		cfg.LeakThreshold = def.LeakThreshold
	}
	if clk == nil {
		clk = clock.New()
	}
	return &LeakDetector{
		cfg:     cfg,
		clk:     clk,
		emitter: emitter,
		entries: make(map[string]*TrackedAllocation),
	}
}

// Track opts an allocation into tracking. Re-tracking an id resets its
// age. When the table is full, the oldest entry is evicted.
func (d *LeakDetector) Track(objectID string, sizeBytes uint64, origin string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[objectID]; exists {
		d.removeFromOrder(objectID)
	}
	d.entries[objectID] = &TrackedAllocation{
		ObjectID:    objectID,
		AllocatedAt: d.clk.Now(),
		SizeBytes:   sizeBytes,
		Origin:      origin,
	}
	d.order = append(d.order, objectID)

	log := logger.WithComponent("leak-detector")
	for len(d.entries) > d.cfg.MaxEntries {
		oldest := d.order[0]
		d.order = d.order[1:]
		if _, ok := d.entries[oldest]; ok {
			delete(d.entries, oldest)
			log.Debug().
				Str("object_id", oldest).
				Msg("Tracked allocation evicted, table full")
		}
	}
}

// Untrack removes an allocation from tracking.
func (d *LeakDetector) Untrack(objectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[objectID]; ok {
		delete(d.entries, objectID)
		d.removeFromOrder(objectID)
	}
}

// Len returns the number of tracked allocations.
func (d *LeakDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Suspects returns tracked allocations older than the leak threshold.
func (d *LeakDetector) Suspects() []TrackedAllocation {
	cutoff := d.clk.Now().Add(-d.cfg.LeakThreshold)

	d.mu.Lock()
	defer d.mu.Unlock()
	var out []TrackedAllocation
	for _, id := range d.order {
		e, ok := d.entries[id]
		if !ok {
			continue
		}
		if !e.AllocatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	return out
}

// Start begins the periodic background sweep.
func (d *LeakDetector) Start(ctx context.Context) error {
	d.runMu.Lock()
	if d.running {
		d.runMu.Unlock()
		return nil
	}
	d.running = true
	ctx, d.cancel = context.WithCancel(ctx)
	d.runMu.Unlock()

	log := logger.WithComponent("leak-detector")
	log.Info().
		Dur("interval", d.cfg.SweepInterval).
		Dur("threshold", d.cfg.LeakThreshold).
		Msg("Starting leak sweep")

	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Stop stops the background sweep and waits for it to finish.
func (d *LeakDetector) Stop() {
	d.runMu.Lock()
	if !d.running {
		d.runMu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.runMu.Unlock()

	d.wg.Wait()
}

func (d *LeakDetector) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := d.clk.Ticker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep reports every allocation older than the leak threshold as a
// possible leak. Entries stay tracked; the report is advisory.
func (d *LeakDetector) Sweep(ctx context.Context) int {
	log := logger.WithComponent("leak-detector")
	suspects := d.Suspects()
	for _, s := range suspects {
		age := d.clk.Now().Sub(s.AllocatedAt)
		log.Warn().
			Str("object_id", s.ObjectID).
			Uint64("size_bytes", s.SizeBytes).
			Dur("age", age).
			Str("origin", s.Origin).
			Msg("Possible leak")
		d.emitter.Emit(ctx, events.TypePossibleLeak, map[string]string{
			"object_id":  s.ObjectID,
			"size_bytes": strconv.FormatUint(s.SizeBytes, 10),
			"age":        age.String(),
			"origin":     s.Origin,
		})
	}
	return len(suspects)
}

// removeFromOrder drops objectID from the insertion-order slice.
// Callers must hold d.mu.
func (d *LeakDetector) removeFromOrder(objectID string) {
	for i, id := range d.order {
		if id == objectID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}
