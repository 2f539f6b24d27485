package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"resourceruntime/internal/logger"
)

// rawConfig mirrors Config for JSON unmarshaling with duration strings
// (e.g. "5s", "30s", "5m").
type rawConfig struct {
	RuntimeID string             `json:"RuntimeID"`
	Registry  rawRegistryConfig  `json:"Registry"`
	Monitor   rawMonitorConfig   `json:"Monitor"`
	Leak      rawLeakConfig      `json:"Leak"`
	Lifecycle LifecycleConfig    `json:"Lifecycle"`
	Store     StoreConfig        `json:"Store"`
	Events    rawEventsConfig    `json:"Events"`
	SOCKS     SOCKSConfig        `json:"SocksProxy"`
}

type rawRegistryConfig struct {
	SlowOpTimeout    string `json:"SlowOpTimeout"`
	MaxDisposePasses int    `json:"MaxDisposePasses"`
}

type rawMonitorConfig struct {
	SampleInterval  string   `json:"SampleInterval"`
	HistorySize     int      `json:"HistorySize"`
	WarningRatio    float64  `json:"WarningRatio"`
	CriticalRatio   float64  `json:"CriticalRatio"`
	EmergencyRatio  float64  `json:"EmergencyRatio"`
	SpikeRatio      float64  `json:"SpikeRatio"`
	CleanupCooldown string   `json:"CleanupCooldown"`
	EmergencyPasses int      `json:"EmergencyPasses"`
	EmergencyPause  string   `json:"EmergencyPause"`
	EvictionWindow  string   `json:"EvictionWindow"`
	TransientDirs   []string `json:"TransientDirs"`
}

type rawLeakConfig struct {
	MaxEntries    int    `json:"MaxEntries"`
	SweepInterval string `json:"SweepInterval"`
	LeakThreshold string `json:"LeakThreshold"`
}

type rawEventsConfig struct {
	SinkType string         `json:"SinkType"`
	File     FileSinkConfig `json:"File"`
	Kafka    rawKafkaConfig `json:"Kafka"`
}

type rawKafkaConfig struct {
	Brokers        []string `json:"Brokers"`
	Topic          string   `json:"Topic"`
	Compression    string   `json:"Compression"`
	RequiredAcks   int      `json:"RequiredAcks"`
	MaxRetries     int      `json:"MaxRetries"`
	RetryBackoff   string   `json:"RetryBackoff"`
	FlushFrequency string   `json:"FlushFrequency"`
	FlushMessages  int      `json:"FlushMessages"`
	Timeout        string   `json:"Timeout"`
	EnableTLS      bool     `json:"EnableTLS"`
	TLSCertFile    string   `json:"TLSCertFile"`
	TLSKeyFile     string   `json:"TLSKeyFile"`
	TLSCAFile      string   `json:"TLSCAFile"`
	SASLEnabled    bool     `json:"SASLEnabled"`
	SASLMechanism  string   `json:"SASLMechanism"`
	SASLUser       string   `json:"SASLUser"`
	SASLPassword   string   `json:"SASLPassword"`
}

// Load reads runtime configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses runtime configuration from JSON bytes. Values missing from
// the input keep their defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Merge(parsed)
	return cfg, nil
}

// LoadSplit loads the runtime config and the logging config from their
// respective files. A missing logging file yields logging defaults.
func LoadSplit(runtimePath, loggingPath string) (*Config, *logger.Config, error) {
	cfg, err := Load(runtimePath)
	if err != nil {
		return nil, nil, err
	}

	lc, err := LoadLogging(loggingPath)
	if err != nil {
		if os.IsNotExist(err) {
			def := logger.DefaultConfig()
			return cfg, &def, nil
		}
		return nil, nil, err
	}
	return cfg, lc, nil
}

// LoadLogging reads logging configuration from the specified file path.
func LoadLogging(path string) (*logger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := logger.DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse logging JSON: %w", err)
	}
	return &cfg, nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		RuntimeID: raw.RuntimeID,
		Lifecycle: raw.Lifecycle,
		Store:     raw.Store,
		SOCKS:     raw.SOCKS,
	}

	var err error
	if cfg.Registry.SlowOpTimeout, err = parseDuration(raw.Registry.SlowOpTimeout, "Registry.SlowOpTimeout"); err != nil {
		return nil, err
	}
	cfg.Registry.MaxDisposePasses = raw.Registry.MaxDisposePasses

	m := raw.Monitor
	if cfg.Monitor.SampleInterval, err = parseDuration(m.SampleInterval, "Monitor.SampleInterval"); err != nil {
		return nil, err
	}
	if cfg.Monitor.CleanupCooldown, err = parseDuration(m.CleanupCooldown, "Monitor.CleanupCooldown"); err != nil {
		return nil, err
	}
	if cfg.Monitor.EmergencyPause, err = parseDuration(m.EmergencyPause, "Monitor.EmergencyPause"); err != nil {
		return nil, err
	}
	if cfg.Monitor.EvictionWindow, err = parseDuration(m.EvictionWindow, "Monitor.EvictionWindow"); err != nil {
		return nil, err
	}
	cfg.Monitor.HistorySize = m.HistorySize
	cfg.Monitor.WarningRatio = m.WarningRatio
	cfg.Monitor.CriticalRatio = m.CriticalRatio
	cfg.Monitor.EmergencyRatio = m.EmergencyRatio
	cfg.Monitor.SpikeRatio = m.SpikeRatio
	cfg.Monitor.EmergencyPasses = m.EmergencyPasses
	cfg.Monitor.TransientDirs = m.TransientDirs

	if cfg.Leak.SweepInterval, err = parseDuration(raw.Leak.SweepInterval, "Leak.SweepInterval"); err != nil {
		return nil, err
	}
	if cfg.Leak.LeakThreshold, err = parseDuration(raw.Leak.LeakThreshold, "Leak.LeakThreshold"); err != nil {
		return nil, err
	}
	cfg.Leak.MaxEntries = raw.Leak.MaxEntries

	cfg.Events.SinkType = raw.Events.SinkType
	cfg.Events.File = raw.Events.File

	k := raw.Events.Kafka
	if cfg.Events.Kafka.RetryBackoff, err = parseDuration(k.RetryBackoff, "Events.Kafka.RetryBackoff"); err != nil {
		return nil, err
	}
	if cfg.Events.Kafka.FlushFrequency, err = parseDuration(k.FlushFrequency, "Events.Kafka.FlushFrequency"); err != nil {
		return nil, err
	}
	if cfg.Events.Kafka.Timeout, err = parseDuration(k.Timeout, "Events.Kafka.Timeout"); err != nil {
		return nil, err
	}
	cfg.Events.Kafka.Brokers = k.Brokers
	cfg.Events.Kafka.Topic = k.Topic
	cfg.Events.Kafka.Compression = k.Compression
	cfg.Events.Kafka.RequiredAcks = k.RequiredAcks
	cfg.Events.Kafka.MaxRetries = k.MaxRetries
	cfg.Events.Kafka.FlushMessages = k.FlushMessages
	cfg.Events.Kafka.EnableTLS = k.EnableTLS
	cfg.Events.Kafka.TLSCertFile = k.TLSCertFile
	cfg.Events.Kafka.TLSKeyFile = k.TLSKeyFile
	cfg.Events.Kafka.TLSCAFile = k.TLSCAFile
	cfg.Events.Kafka.SASLEnabled = k.SASLEnabled
	cfg.Events.Kafka.SASLMechanism = k.SASLMechanism
	cfg.Events.Kafka.SASLUser = k.SASLUser
	cfg.Events.Kafka.SASLPassword = k.SASLPassword

	return cfg, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", field, s)
	}
	return d, nil
}
