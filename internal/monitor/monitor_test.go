package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"

	"resourceruntime/internal/config"
	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "fatal"})
	goleak.VerifyTestMain(m)
}

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(_ context.Context, ev *events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, *ev)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) byType(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeEvictor counts cleanup-driven idle disposals.
type fakeEvictor struct {
	mu    sync.Mutex
	calls int
}

func (e *fakeEvictor) DisposeIdle(context.Context, time.Duration) (int, uint64) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return 1, 2048
}

func (e *fakeEvictor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func staticSampler(used, total, app uint64) SamplerFunc {
	return func(context.Context) (Statistics, error) {
		return Statistics{
			TotalBytes: total,
			UsedBytes:  used,
			FreeBytes:  total - used,
			AppBytes:   app,
			Timestamp:  time.Now(),
		}, nil
	}
}

func sample(used, total, app uint64) Statistics {
	return Statistics{
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  total - used,
		AppBytes:   app,
		Timestamp:  time.Now(),
	}
}

func TestClassify(t *testing.T) {
	th := Thresholds{Warning: 0.60, Critical: 0.75, Emergency: 0.90}

	cases := []struct {
		used uint64
		want Level
	}{
		{0, LevelNormal},
		{59, LevelNormal},
		{60, LevelWarning},
		{74, LevelWarning},
		{75, LevelCritical},
		{89, LevelCritical},
		{90, LevelEmergency},
		{100, LevelEmergency},
	}
	for _, c := range cases {
		if got := Classify(c.used, 100, th); got != c.want {
			t.Errorf("Classify(%d/100) = %s, want %s", c.used, got, c.want)
		}
	}

	if got := Classify(50, 0, th); got != LevelNormal {
		t.Errorf("Classify with zero total = %s, want normal", got)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	th := Thresholds{Warning: 0.60, Critical: 0.75, Emergency: 0.90}
	prev := LevelNormal
	for used := uint64(0); used <= 100; used++ {
		level := Classify(used, 100, th)
		if level < prev {
			t.Fatalf("classification not monotonic: %d/100 gave %s after %s", used, level, prev)
		}
		prev = level
	}
}

func TestObserve_LevelChangesAndCleanups(t *testing.T) {
	sink := &captureSink{}
	evictor := &fakeEvictor{}
	m, err := New(config.MonitorConfig{
		WarningRatio:   0.60,
		CriticalRatio:  0.90,
		EmergencyRatio: 0.95,
	}, staticSampler(50, 100, 0), evictor, events.NewEmitter(sink, "test", "host"), clock.NewMock())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	for _, used := range []uint64{50, 70, 92, 93} {
		m.Observe(ctx, sample(used, 100, 0))
	}

	changes := sink.byType(events.TypeWarningLevelChanged)
	if len(changes) != 2 {
		t.Fatalf("expected 2 level-change events, got %d", len(changes))
	}
	if changes[0].Data["old"] != "normal" || changes[0].Data["new"] != "warning" {
		t.Errorf("first change: got %v", changes[0].Data)
	}
	if changes[1].Data["old"] != "warning" || changes[1].Data["new"] != "critical" {
		t.Errorf("second change: got %v", changes[1].Data)
	}

	// Warning triggered a soft cleanup, critical a forced one; the second
	// critical-range sample changed nothing.
	if got := evictor.count(); got != 2 {
		t.Errorf("expected 2 cleanups, got %d", got)
	}
	if m.LastLevel() != LevelCritical {
		t.Errorf("expected last level critical, got %s", m.LastLevel())
	}
}

func TestRequestCleanup_Cooldown(t *testing.T) {
	mock := clock.NewMock()
	evictor := &fakeEvictor{}
	m, err := New(config.MonitorConfig{
		CleanupCooldown: 30 * time.Second,
	}, staticSampler(10, 100, 0), evictor, nil, mock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if !m.RequestCleanup(ctx, false) {
		t.Fatal("first soft cleanup should run")
	}
	if m.RequestCleanup(ctx, false) {
		t.Error("soft cleanup inside cooldown window should be skipped")
	}
	if got := evictor.count(); got != 1 {
		t.Errorf("expected 1 cleanup, got %d", got)
	}

	// Forced requests ignore the cooldown.
	if !m.RequestCleanup(ctx, true) {
		t.Error("forced cleanup should always run")
	}

	mock.Add(31 * time.Second)
	if !m.RequestCleanup(ctx, false) {
		t.Error("soft cleanup after cooldown should run")
	}
	if got := evictor.count(); got != 3 {
		t.Errorf("expected 3 cleanups, got %d", got)
	}
}

func TestObserve_CooldownAcrossWarningSamples(t *testing.T) {
	mock := clock.NewMock()
	sink := &captureSink{}
	evictor := &fakeEvictor{}
	m, err := New(config.MonitorConfig{
		CleanupCooldown: 30 * time.Second,
	}, staticSampler(10, 100, 0), evictor, events.NewEmitter(sink, "test", "host"), mock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	m.Observe(ctx, sample(70, 100, 0)) // normal -> warning, soft cleanup
	m.Observe(ctx, sample(10, 100, 0)) // back to normal
	m.Observe(ctx, sample(70, 100, 0)) // warning again, still in cooldown

	if got := evictor.count(); got != 1 {
		t.Errorf("two warning entries inside the cooldown window must cost at most 1 cleanup, got %d", got)
	}

	// Critical bypasses the cooldown.
	m.Observe(ctx, sample(80, 100, 0))
	if got := evictor.count(); got != 2 {
		t.Errorf("critical must force cleanup inside cooldown, got %d cleanups", got)
	}
}

func TestObserve_Spike(t *testing.T) {
	sink := &captureSink{}
	evictor := &fakeEvictor{}
	m, err := New(config.MonitorConfig{
		SpikeRatio: 0.20,
	}, staticSampler(10, 100, 0), evictor, events.NewEmitter(sink, "test", "host"), clock.NewMock())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	m.Observe(ctx, sample(10, 100, 100))
	m.Observe(ctx, sample(10, 100, 130)) // +30% app usage, level still normal

	spikes := sink.byType(events.TypeUsageSpike)
	if len(spikes) != 1 {
		t.Fatalf("expected 1 spike event, got %d", len(spikes))
	}
	if spikes[0].Data["previous"] != "100" || spikes[0].Data["current"] != "130" {
		t.Errorf("unexpected spike data: %v", spikes[0].Data)
	}

	// A spike at normal pressure does not trigger cleanup.
	if got := evictor.count(); got != 0 {
		t.Errorf("spike at normal level must not clean up, got %d cleanups", got)
	}

	// Small growth under the spike ratio is not a spike.
	m.Observe(ctx, sample(10, 100, 140)) // +7.7%
	if got := len(sink.byType(events.TypeUsageSpike)); got != 1 {
		t.Errorf("expected no additional spike event, got %d total", got)
	}
}

func TestEmergencyCleanup(t *testing.T) {
	sink := &captureSink{}
	evictor := &fakeEvictor{}
	m, err := New(config.MonitorConfig{
		EmergencyPasses: 2,
		EmergencyPause:  time.Millisecond,
	}, staticSampler(96, 100, 0), evictor, events.NewEmitter(sink, "test", "host"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	m.Observe(ctx, sample(96, 100, 0)) // normal -> emergency

	// 1 forced cleanup plus 2 extra passes.
	if got := evictor.count(); got != 3 {
		t.Errorf("expected 3 cleanup passes, got %d", got)
	}
	if got := len(m.History()); got != 0 {
		t.Errorf("emergency must clear history, got %d entries", got)
	}
	if m.LastLevel() != LevelEmergency {
		t.Errorf("expected emergency level, got %s", m.LastLevel())
	}
	if got := len(sink.byType(events.TypeCleanupCompleted)); got != 3 {
		t.Errorf("expected 3 cleanup events, got %d", got)
	}
}

func TestHistoryBound(t *testing.T) {
	m, err := New(config.MonitorConfig{
		HistorySize: 5,
	}, staticSampler(10, 100, 0), nil, nil, clock.NewMock())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		m.Observe(ctx, sample(uint64(10+i), 100, 0))
	}

	hist := m.History()
	if len(hist) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(hist))
	}
	if hist[len(hist)-1].UsedBytes != 29 {
		t.Errorf("expected newest sample last, got used=%d", hist[len(hist)-1].UsedBytes)
	}
}

func TestRegisterCacheRelease(t *testing.T) {
	released := 0
	m, err := New(config.MonitorConfig{}, staticSampler(10, 100, 0), nil, nil, clock.NewMock())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.RegisterCacheRelease(func() { released++ })
	m.RegisterCacheRelease(func() { released++ })

	m.RequestCleanup(context.Background(), true)
	if released != 2 {
		t.Errorf("expected 2 release callbacks run, got %d", released)
	}
}

func TestReconfigure(t *testing.T) {
	m, err := New(config.MonitorConfig{}, staticSampler(10, 100, 0), nil, nil, clock.NewMock())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Reconfigure(config.MonitorConfig{
		WarningRatio:  0.50,
		CriticalRatio: 0.70,
	})
	th := m.Thresholds()
	if th.Warning != 0.50 || th.Critical != 0.70 {
		t.Errorf("thresholds not applied: %+v", th)
	}
	// Unset fields keep their previous values.
	if th.Emergency != config.DefaultConfig().Monitor.EmergencyRatio {
		t.Errorf("emergency ratio changed unexpectedly: %v", th.Emergency)
	}
}

func TestStartStop(t *testing.T) {
	m, err := New(config.MonitorConfig{
		SampleInterval: time.Hour, // only the initial sample should fire
	}, staticSampler(10, 100, 0), nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("second Start must be a no-op: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(m.History()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial sample never observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	m.Stop() // idempotent
}
