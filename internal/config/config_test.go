package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"resourceruntime/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "fatal"})
	os.Exit(m.Run())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Monitor.SampleInterval != 5*time.Second {
		t.Errorf("SampleInterval: got %v", cfg.Monitor.SampleInterval)
	}
	if cfg.Monitor.WarningRatio != 0.60 || cfg.Monitor.CriticalRatio != 0.75 || cfg.Monitor.EmergencyRatio != 0.90 {
		t.Errorf("unexpected default ratios: %+v", cfg.Monitor)
	}
	if cfg.Leak.MaxEntries != 1000 {
		t.Errorf("Leak.MaxEntries: got %d", cfg.Leak.MaxEntries)
	}
	if cfg.Store.Type != "file" {
		t.Errorf("Store.Type: got %q", cfg.Store.Type)
	}
	if cfg.Registry.MaxDisposePasses != 100 {
		t.Errorf("Registry.MaxDisposePasses: got %d", cfg.Registry.MaxDisposePasses)
	}
	if len(cfg.Lifecycle.CriticalKinds) == 0 {
		t.Error("expected default critical kinds")
	}
}

func TestParse(t *testing.T) {
	data := []byte(`{
		"RuntimeID": "runtime-7",
		"Registry": {
			"SlowOpTimeout": "45s",
			"MaxDisposePasses": 50
		},
		"Monitor": {
			"SampleInterval": "10s",
			"WarningRatio": 0.5,
			"CleanupCooldown": "1m",
			"EvictionWindow": "10m",
			"TransientDirs": ["/tmp/runtime-cache"]
		},
		"Leak": {
			"SweepInterval": "2m"
		},
		"Store": {
			"Type": "redis",
			"Redis": {"Addr": "redis.internal:6379", "DB": 2}
		},
		"Events": {
			"SinkType": "kafka",
			"Kafka": {
				"Brokers": ["kafka-1:9092", "kafka-2:9092"],
				"Topic": "runtime",
				"RetryBackoff": "250ms"
			}
		},
		"SocksProxy": {"Host": "proxy.internal", "Port": 1080}
	}`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.RuntimeID != "runtime-7" {
		t.Errorf("RuntimeID: got %q", cfg.RuntimeID)
	}
	if cfg.Registry.SlowOpTimeout != 45*time.Second {
		t.Errorf("SlowOpTimeout: got %v", cfg.Registry.SlowOpTimeout)
	}
	if cfg.Registry.MaxDisposePasses != 50 {
		t.Errorf("MaxDisposePasses: got %d", cfg.Registry.MaxDisposePasses)
	}
	if cfg.Monitor.SampleInterval != 10*time.Second {
		t.Errorf("SampleInterval: got %v", cfg.Monitor.SampleInterval)
	}
	if cfg.Monitor.WarningRatio != 0.5 {
		t.Errorf("WarningRatio: got %v", cfg.Monitor.WarningRatio)
	}
	// Values absent from the input keep their defaults.
	if cfg.Monitor.CriticalRatio != 0.75 {
		t.Errorf("CriticalRatio should keep default, got %v", cfg.Monitor.CriticalRatio)
	}
	if cfg.Monitor.CleanupCooldown != time.Minute {
		t.Errorf("CleanupCooldown: got %v", cfg.Monitor.CleanupCooldown)
	}
	if cfg.Monitor.EvictionWindow != 10*time.Minute {
		t.Errorf("EvictionWindow: got %v", cfg.Monitor.EvictionWindow)
	}
	if len(cfg.Monitor.TransientDirs) != 1 || cfg.Monitor.TransientDirs[0] != "/tmp/runtime-cache" {
		t.Errorf("TransientDirs: got %v", cfg.Monitor.TransientDirs)
	}
	if cfg.Leak.SweepInterval != 2*time.Minute {
		t.Errorf("SweepInterval: got %v", cfg.Leak.SweepInterval)
	}
	if cfg.Leak.LeakThreshold != 5*time.Minute {
		t.Errorf("LeakThreshold should keep default, got %v", cfg.Leak.LeakThreshold)
	}
	if cfg.Store.Type != "redis" || cfg.Store.Redis.Addr != "redis.internal:6379" || cfg.Store.Redis.DB != 2 {
		t.Errorf("Store: got %+v", cfg.Store)
	}
	if cfg.Events.SinkType != "kafka" {
		t.Errorf("SinkType: got %q", cfg.Events.SinkType)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Topic != "runtime" {
		t.Errorf("Kafka: got %+v", cfg.Events.Kafka)
	}
	if cfg.Events.Kafka.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff: got %v", cfg.Events.Kafka.RetryBackoff)
	}
	if cfg.SOCKS.Host != "proxy.internal" || cfg.SOCKS.Port != 1080 {
		t.Errorf("SOCKS: got %+v", cfg.SOCKS)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Monitor.SampleInterval != def.Monitor.SampleInterval {
		t.Errorf("empty config must equal defaults, got %v", cfg.Monitor.SampleInterval)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`{"Monitor": {"SampleInterval": "five seconds"}}`))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Runtime.json")
	if err := os.WriteFile(path, []byte(`{"RuntimeID": "from-file"}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RuntimeID != "from-file" {
		t.Errorf("RuntimeID: got %q", cfg.RuntimeID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSplit_MissingLoggingFile(t *testing.T) {
	dir := t.TempDir()
	runtimePath := filepath.Join(dir, "Runtime.json")
	if err := os.WriteFile(runtimePath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, lc, err := LoadSplit(runtimePath, filepath.Join(dir, "Logging.json"))
	if err != nil {
		t.Fatalf("LoadSplit failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected runtime config")
	}
	// Missing logging file falls back to logging defaults.
	if lc == nil || lc.Level != "info" {
		t.Errorf("expected default logging config, got %+v", lc)
	}
}

func TestLoadLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Logging.json")
	if err := os.WriteFile(path, []byte(`{"Level": "debug", "Console": true}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	lc, err := LoadLogging(path)
	if err != nil {
		t.Fatalf("LoadLogging failed: %v", err)
	}
	if lc.Level != "debug" || !lc.Console {
		t.Errorf("unexpected logging config: %+v", lc)
	}
	// Unset fields keep defaults.
	if lc.MaxSizeMB != 10 {
		t.Errorf("MaxSizeMB should keep default, got %d", lc.MaxSizeMB)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		RuntimeID: "override",
		Monitor:   MonitorConfig{HistorySize: 42},
	})

	if base.RuntimeID != "override" {
		t.Errorf("RuntimeID: got %q", base.RuntimeID)
	}
	if base.Monitor.HistorySize != 42 {
		t.Errorf("HistorySize: got %d", base.Monitor.HistorySize)
	}
	if base.Monitor.SampleInterval != 5*time.Second {
		t.Errorf("unset field must keep default, got %v", base.Monitor.SampleInterval)
	}

	// Nil merge is a no-op.
	base.Merge(nil)
	if base.RuntimeID != "override" {
		t.Error("nil merge changed config")
	}
}

func TestGetHostname(t *testing.T) {
	if GetHostname() == "" {
		t.Error("expected non-empty hostname")
	}
}
