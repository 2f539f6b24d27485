// Package config provides configuration management for the resource runtime.
package config

import (
	"os"
	"time"
)

// Config is the root runtime configuration.
type Config struct {
	RuntimeID string          `json:"RuntimeID"`
	Registry  RegistryConfig  `json:"Registry"`
	Monitor   MonitorConfig   `json:"Monitor"`
	Leak      LeakConfig      `json:"Leak"`
	Lifecycle LifecycleConfig `json:"Lifecycle"`
	Store     StoreConfig     `json:"Store"`
	Events    EventsConfig    `json:"Events"`
	SOCKS     SOCKSConfig     `json:"SocksProxy"`
}

// RegistryConfig tunes the resource registry.
type RegistryConfig struct {
	SlowOpTimeout    time.Duration `json:"SlowOpTimeout"`
	MaxDisposePasses int           `json:"MaxDisposePasses"`
}

// MonitorConfig tunes the memory monitor sampler and cleanup policy.
type MonitorConfig struct {
	SampleInterval  time.Duration `json:"SampleInterval"`
	HistorySize     int           `json:"HistorySize"`
	WarningRatio    float64       `json:"WarningRatio"`
	CriticalRatio   float64       `json:"CriticalRatio"`
	EmergencyRatio  float64       `json:"EmergencyRatio"`
	SpikeRatio      float64       `json:"SpikeRatio"`
	CleanupCooldown time.Duration `json:"CleanupCooldown"`
	EmergencyPasses int           `json:"EmergencyPasses"`
	EmergencyPause  time.Duration `json:"EmergencyPause"`
	EvictionWindow  time.Duration `json:"EvictionWindow"`
	TransientDirs   []string      `json:"TransientDirs"`
}

// LeakConfig tunes the allocation leak detector.
type LeakConfig struct {
	MaxEntries    int           `json:"MaxEntries"`
	SweepInterval time.Duration `json:"SweepInterval"`
	LeakThreshold time.Duration `json:"LeakThreshold"`
}

// LifecycleConfig tunes lifecycle orchestration.
type LifecycleConfig struct {
	CriticalKinds []string `json:"CriticalKinds"`
}

// StoreConfig selects and configures the snapshot store backend.
type StoreConfig struct {
	Type     string      `json:"Type"` // "file" or "redis"
	FilePath string      `json:"FilePath"`
	Redis    RedisConfig `json:"Redis"`
}

// RedisConfig contains Redis connection settings for the snapshot store.
type RedisConfig struct {
	Addr     string `json:"Addr"`
	Password string `json:"Password"`
	DB       int    `json:"DB"`
	Key      string `json:"Key"`
}

// EventsConfig selects and configures the telemetry event sink.
type EventsConfig struct {
	SinkType string         `json:"SinkType"` // "file", "kafka", or "none"
	File     FileSinkConfig `json:"File"`
	Kafka    KafkaConfig    `json:"Kafka"`
}

// FileSinkConfig contains settings for the file event sink.
type FileSinkConfig struct {
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	Console    bool   `json:"Console"`
	Pretty     bool   `json:"Pretty"`
}

// KafkaConfig contains Kafka connection settings for the event sink.
type KafkaConfig struct {
	Brokers        []string      `json:"Brokers"`
	Topic          string        `json:"Topic"`
	Compression    string        `json:"Compression"`
	RequiredAcks   int           `json:"RequiredAcks"`
	MaxRetries     int           `json:"MaxRetries"`
	RetryBackoff   time.Duration `json:"RetryBackoff"`
	FlushFrequency time.Duration `json:"FlushFrequency"`
	FlushMessages  int           `json:"FlushMessages"`
	Timeout        time.Duration `json:"Timeout"`
	EnableTLS      bool          `json:"EnableTLS"`
	TLSCertFile    string        `json:"TLSCertFile"`
	TLSKeyFile     string        `json:"TLSKeyFile"`
	TLSCAFile      string        `json:"TLSCAFile"`
	SASLEnabled    bool          `json:"SASLEnabled"`
	SASLMechanism  string        `json:"SASLMechanism"`
	SASLUser       string        `json:"SASLUser"`
	SASLPassword   string        `json:"SASLPassword"`
}

// SOCKSConfig contains SOCKS5 proxy settings, shared by the Redis store
// and the Kafka sink.
type SOCKSConfig struct {
	Host string `json:"Host"`
	Port int    `json:"Port"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RuntimeID: GetHostname(),
		Registry: RegistryConfig{
			SlowOpTimeout:    30 * time.Second,
			MaxDisposePasses: 100,
		},
		Monitor: MonitorConfig{
			SampleInterval:  5 * time.Second,
			HistorySize:     100,
			WarningRatio:    0.60,
			CriticalRatio:   0.75,
			EmergencyRatio:  0.90,
			SpikeRatio:      0.20,
			CleanupCooldown: 30 * time.Second,
			EmergencyPasses: 3,
			EmergencyPause:  500 * time.Millisecond,
			EvictionWindow:  5 * time.Minute,
		},
		Leak: LeakConfig{
			MaxEntries:    1000,
			SweepInterval: 60 * time.Second,
			LeakThreshold: 5 * time.Minute,
		},
		Lifecycle: LifecycleConfig{
			CriticalKinds: []string{"audio", "recognition"},
		},
		Store: StoreConfig{
			Type:     "file",
			FilePath: "state/runtime-snapshot.json",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
				Key:  "runtime:snapshot",
			},
		},
		Events: EventsConfig{
			SinkType: "file",
			File: FileSinkConfig{
				FilePath:   "log/runtime-events.jsonl",
				MaxSizeMB:  50,
				MaxBackups: 3,
				Console:    false,
				Pretty:     false,
			},
			Kafka: KafkaConfig{
				Brokers:        []string{"localhost:9092"},
				Topic:          "runtime-events",
				Compression:    "snappy",
				RequiredAcks:   1,
				MaxRetries:     3,
				RetryBackoff:   100 * time.Millisecond,
				FlushFrequency: 500 * time.Millisecond,
				FlushMessages:  100,
				Timeout:        10 * time.Second,
			},
		},
	}
}

// Merge applies non-zero values from other to this config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.RuntimeID != "" {
		c.RuntimeID = other.RuntimeID
	}

	if other.Registry.SlowOpTimeout != 0 {
		c.Registry.SlowOpTimeout = other.Registry.SlowOpTimeout
	}
	if other.Registry.MaxDisposePasses != 0 {
		c.Registry.MaxDisposePasses = other.Registry.MaxDisposePasses
	}

	m := &c.Monitor
	om := other.Monitor
	if om.SampleInterval != 0 {
		m.SampleInterval = om.SampleInterval
	}
	if om.HistorySize != 0 {
		m.HistorySize = om.HistorySize
	}
	if om.WarningRatio != 0 {
		m.WarningRatio = om.WarningRatio
	}
	if om.CriticalRatio != 0 {
		m.CriticalRatio = om.CriticalRatio
	}
	if om.EmergencyRatio != 0 {
		m.EmergencyRatio = om.EmergencyRatio
	}
	if om.SpikeRatio != 0 {
		m.SpikeRatio = om.SpikeRatio
	}
	if om.CleanupCooldown != 0 {
		m.CleanupCooldown = om.CleanupCooldown
	}
	if om.EmergencyPasses != 0 {
		m.EmergencyPasses = om.EmergencyPasses
	}
	if om.EmergencyPause != 0 {
		m.EmergencyPause = om.EmergencyPause
	}
	if om.EvictionWindow != 0 {
		m.EvictionWindow = om.EvictionWindow
	}
	if len(om.TransientDirs) > 0 {
		m.TransientDirs = om.TransientDirs
	}

	if other.Leak.MaxEntries != 0 {
		c.Leak.MaxEntries = other.Leak.MaxEntries
	}
	if other.Leak.SweepInterval != 0 {
		c.Leak.SweepInterval = other.Leak.SweepInterval
	}
	if other.Leak.LeakThreshold != 0 {
		c.Leak.LeakThreshold = other.Leak.LeakThreshold
	}

	if len(other.Lifecycle.CriticalKinds) > 0 {
		c.Lifecycle.CriticalKinds = other.Lifecycle.CriticalKinds
	}

	if other.Store.Type != "" {
		c.Store.Type = other.Store.Type
	}
	if other.Store.FilePath != "" {
		c.Store.FilePath = other.Store.FilePath
	}
	if other.Store.Redis.Addr != "" {
		c.Store.Redis.Addr = other.Store.Redis.Addr
	}
	if other.Store.Redis.Password != "" {
		c.Store.Redis.Password = other.Store.Redis.Password
	}
	if other.Store.Redis.DB != 0 {
		c.Store.Redis.DB = other.Store.Redis.DB
	}
	if other.Store.Redis.Key != "" {
		c.Store.Redis.Key = other.Store.Redis.Key
	}

	if other.Events.SinkType != "" {
		c.Events.SinkType = other.Events.SinkType
	}
	if other.Events.File.FilePath != "" {
		c.Events.File.FilePath = other.Events.File.FilePath
	}
	if other.Events.File.MaxSizeMB != 0 {
		c.Events.File.MaxSizeMB = other.Events.File.MaxSizeMB
	}
	if other.Events.File.MaxBackups != 0 {
		c.Events.File.MaxBackups = other.Events.File.MaxBackups
	}
	c.Events.File.Console = other.Events.File.Console
	c.Events.File.Pretty = other.Events.File.Pretty

	k := &c.Events.Kafka
	ok := other.Events.Kafka
	if len(ok.Brokers) > 0 {
		k.Brokers = ok.Brokers
	}
	if ok.Topic != "" {
		k.Topic = ok.Topic
	}
	if ok.Compression != "" {
		k.Compression = ok.Compression
	}
	if ok.RequiredAcks != 0 {
		k.RequiredAcks = ok.RequiredAcks
	}
	if ok.MaxRetries != 0 {
		k.MaxRetries = ok.MaxRetries
	}
	if ok.RetryBackoff != 0 {
		k.RetryBackoff = ok.RetryBackoff
	}
	if ok.FlushFrequency != 0 {
		k.FlushFrequency = ok.FlushFrequency
	}
	if ok.FlushMessages != 0 {
		k.FlushMessages = ok.FlushMessages
	}
	if ok.Timeout != 0 {
		k.Timeout = ok.Timeout
	}
	k.EnableTLS = ok.EnableTLS
	if ok.TLSCertFile != "" {
		k.TLSCertFile = ok.TLSCertFile
	}
	if ok.TLSKeyFile != "" {
		k.TLSKeyFile = ok.TLSKeyFile
	}
	if ok.TLSCAFile != "" {
		k.TLSCAFile = ok.TLSCAFile
	}
	k.SASLEnabled = ok.SASLEnabled
	if ok.SASLMechanism != "" {
		k.SASLMechanism = ok.SASLMechanism
	}
	if ok.SASLUser != "" {
		k.SASLUser = ok.SASLUser
	}
	if ok.SASLPassword != "" {
		k.SASLPassword = ok.SASLPassword
	}

	if other.SOCKS.Host != "" {
		c.SOCKS.Host = other.SOCKS.Host
	}
	if other.SOCKS.Port != 0 {
		c.SOCKS.Port = other.SOCKS.Port
	}
}

// GetHostname returns the machine hostname, or "unknown" on failure.
func GetHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
