package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"resourceruntime/internal/config"
	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
)

// Evictor disposes idle resources during cleanup. Satisfied by
// *resource.Registry.
type Evictor interface {
	DisposeIdle(ctx context.Context, window time.Duration) (int, uint64)
}

// Monitor runs the periodic memory sampler and drives cleanup policy.
type Monitor struct {
	cfg     config.MonitorConfig
	clk     clock.Clock
	sampler Sampler
	evictor Evictor
	emitter *events.Emitter

	mu           sync.Mutex
	history      []Statistics
	lastLevel    Level
	lastCleanup  time.Time
	everCleaned  bool
	releaseFuncs []func()

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Monitor. sampler and clk may be nil, in which case the
// gopsutil-backed sampler and the wall clock are used.
func New(cfg config.MonitorConfig, sampler Sampler, evictor Evictor, emitter *events.Emitter, clk clock.Clock) (*Monitor, error) {
	def := config.DefaultConfig().Monitor
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.WarningRatio <= 0 {
		cfg.WarningRatio = def.WarningRatio
	}
	if cfg.CriticalRatio <= 0 {
		cfg.CriticalRatio = def.CriticalRatio
	}
	if cfg.EmergencyRatio <= 0 {
		cfg.EmergencyRatio = def.EmergencyRatio
	}
	if cfg.SpikeRatio <= 0 {
		cfg.SpikeRatio = def.SpikeRatio
	}
	if cfg.CleanupCooldown <= 0 {
		cfg.CleanupCooldown = def.CleanupCooldown
	}
	if cfg.EmergencyPasses <= 0 {
		cfg.EmergencyPasses = def.EmergencyPasses
	}
	if cfg.EmergencyPause <= 0 {
		cfg.EmergencyPause = def.EmergencyPause
	}
	if cfg.EvictionWindow <= 0 {
		cfg.EvictionWindow = def.EvictionWindow
	}

	if clk == nil {
		clk = clock.New()
	}
	if sampler == nil {
		var err error
		sampler, err = NewSystemSampler()
		if err != nil {
			return nil, fmt.Errorf("failed to create system sampler: %w", err)
		}
	}

	return &Monitor{
		cfg:     cfg,
		clk:     clk,
		sampler: sampler,
		evictor: evictor,
		emitter: emitter,
	}, nil
}

// Thresholds returns the configured classification thresholds.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Thresholds{
		Warning:   m.cfg.WarningRatio,
		Critical:  m.cfg.CriticalRatio,
		Emergency: m.cfg.EmergencyRatio,
	}
}

// Reconfigure applies updated tuning at runtime. The sample interval of
// an already-running loop is not changed; everything else takes effect on
// the next sample.
func (m *Monitor) Reconfigure(cfg config.MonitorConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.WarningRatio > 0 {
		m.cfg.WarningRatio = cfg.WarningRatio
	}
	if cfg.CriticalRatio > 0 {
		m.cfg.CriticalRatio = cfg.CriticalRatio
	}
	if cfg.EmergencyRatio > 0 {
		m.cfg.EmergencyRatio = cfg.EmergencyRatio
	}
	if cfg.SpikeRatio > 0 {
		m.cfg.SpikeRatio = cfg.SpikeRatio
	}
	if cfg.CleanupCooldown > 0 {
		m.cfg.CleanupCooldown = cfg.CleanupCooldown
	}
	if cfg.EmergencyPasses > 0 {
		m.cfg.EmergencyPasses = cfg.EmergencyPasses
	}
	if cfg.EmergencyPause > 0 {
		m.cfg.EmergencyPause = cfg.EmergencyPause
	}
	if cfg.EvictionWindow > 0 {
		m.cfg.EvictionWindow = cfg.EvictionWindow
	}
	if cfg.HistorySize > 0 {
		m.cfg.HistorySize = cfg.HistorySize
	}
	if len(cfg.TransientDirs) > 0 {
		m.cfg.TransientDirs = cfg.TransientDirs
	}
	if cfg.SampleInterval > 0 && cfg.SampleInterval != m.cfg.SampleInterval {
		log := logger.WithComponent("monitor")
		log.Warn().
			Dur("interval", cfg.SampleInterval).
			Msg("Sample interval change requires restart, keeping current interval")
	}
}

// RegisterCacheRelease adds a callback run as the first cleanup step.
// Consumers register these to drop caches they can rebuild.
func (m *Monitor) RegisterCacheRelease(f func()) {
	m.mu.Lock()
	m.releaseFuncs = append(m.releaseFuncs, f)
	m.mu.Unlock()
}

// Start begins the periodic sampling loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return nil
	}
	m.running = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.runMu.Unlock()

	log := logger.WithComponent("monitor")
	log.Info().
		Dur("interval", m.cfg.SampleInterval).
		Msg("Starting memory monitor")

	m.wg.Add(1)
	go m.loop(ctx)
	return nil
}

// Stop stops the sampling loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.runMu.Unlock()

	m.wg.Wait()
	log := logger.WithComponent("monitor")
	log.Info().Msg("Memory monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clk.Ticker(m.cfg.SampleInterval)
	defer ticker.Stop()

	m.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	stats, err := m.sampler.Sample(ctx)
	if err != nil {
		log := logger.WithComponent("monitor")
		log.Error().Err(err).Msg("Memory sample failed")
		return
	}
	m.Observe(ctx, stats)
}

// Observe classifies one snapshot and applies the pressure and spike
// policies. Exported so a snapshot source other than the internal loop
// (tests, manual triggers) funnels through the identical path.
func (m *Monitor) Observe(ctx context.Context, stats Statistics) {
	log := logger.WithComponent("monitor")
	stats.Level = Classify(stats.UsedBytes, stats.TotalBytes, m.Thresholds())

	m.mu.Lock()
	var prev Statistics
	hasPrev := len(m.history) > 0
	if hasPrev {
		prev = m.history[len(m.history)-1]
	}
	m.history = append(m.history, stats)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	oldLevel := m.lastLevel
	m.lastLevel = stats.Level
	spikeRatio := m.cfg.SpikeRatio
	m.mu.Unlock()

	if stats.Level != oldLevel {
		log.Info().
			Str("old", oldLevel.String()).
			Str("new", stats.Level.String()).
			Uint64("used", stats.UsedBytes).
			Uint64("total", stats.TotalBytes).
			Msg("Memory pressure level changed")
		m.emitter.Emit(ctx, events.TypeWarningLevelChanged, map[string]string{
			"old": oldLevel.String(),
			"new": stats.Level.String(),
		})

		switch stats.Level {
		case LevelNormal:
			// no action
		case LevelWarning:
			m.RequestCleanup(ctx, false)
		case LevelCritical:
			m.RequestCleanup(ctx, true)
		case LevelEmergency:
			m.emergencyCleanup(ctx)
		}
	}

	// Spike detection is independent of the level-change check.
	if hasPrev && prev.AppBytes > 0 &&
		float64(stats.AppBytes) > float64(prev.AppBytes)*(1+spikeRatio) {
		log.Warn().
			Uint64("previous", prev.AppBytes).
			Uint64("current", stats.AppBytes).
			Msg("App memory usage spike")
		m.emitter.Emit(ctx, events.TypeUsageSpike, map[string]string{
			"previous": fmt.Sprintf("%d", prev.AppBytes),
			"current":  fmt.Sprintf("%d", stats.AppBytes),
		})
		if stats.Level >= LevelWarning {
			m.RequestCleanup(ctx, false)
		}
	}
}

// RequestCleanup runs the cleanup sequence. A soft request (force=false)
// is skipped while the cooldown window since the last cleanup has not
// elapsed; a forced request always runs. Returns whether cleanup ran.
func (m *Monitor) RequestCleanup(ctx context.Context, force bool) bool {
	m.mu.Lock()
	if !force && m.everCleaned && m.clk.Now().Sub(m.lastCleanup) < m.cfg.CleanupCooldown {
		m.mu.Unlock()
		log := logger.WithComponent("monitor")
		log.Debug().
			Bool("force", force).
			Msg("Cleanup skipped, cooldown window active")
		return false
	}
	m.lastCleanup = m.clk.Now()
	m.everCleaned = true
	m.mu.Unlock()

	m.runCleanup(ctx)
	return true
}

// emergencyCleanup forces a cleanup, repeats a bounded number of extra
// passes with short pauses, and clears retained history to shed memory
// immediately.
func (m *Monitor) emergencyCleanup(ctx context.Context) {
	m.RequestCleanup(ctx, true)
	for i := 0; i < m.cfg.EmergencyPasses; i++ {
		m.clk.Sleep(m.cfg.EmergencyPause)
		if ctx.Err() != nil {
			break
		}
		m.RequestCleanup(ctx, true)
	}

	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
	log := logger.WithComponent("monitor")
	log.Warn().Msg("Emergency cleanup completed, statistics history cleared")
}

// History returns a copy of the retained statistics history, oldest first.
func (m *Monitor) History() []Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Statistics, len(m.history))
	copy(out, m.history)
	return out
}

// LastLevel returns the most recently classified pressure level.
func (m *Monitor) LastLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLevel
}
