package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runtime.log")
	if err := Init(Config{Level: "debug", FilePath: path}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	log := WithComponent("test")
	log.Info().Str("key", "value").Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["message"] != "hello" {
		t.Errorf("message: got %v", entry["message"])
	}
	if entry["component"] != "test" {
		t.Errorf("component: got %v", entry["component"])
	}
	if entry["key"] != "value" {
		t.Errorf("key: got %v", entry["key"])
	}
	if entry["level"] != "info" {
		t.Errorf("level: got %v", entry["level"])
	}
	if entry["time"] == nil {
		t.Error("expected timestamp field")
	}
}

func TestInitLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.log")
	if err := Init(Config{Level: "warn", FilePath: path}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug().Msg("suppressed")
	Info().Msg("suppressed")
	Warn().Msg("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", data, err)
	}
	if entry["message"] != "kept" {
		t.Errorf("message: got %v", entry["message"])
	}
}

func TestInitBadLevelFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.log")
	if err := Init(Config{Level: "chatty", FilePath: path}); err != nil {
		t.Fatalf("Init must tolerate unknown levels: %v", err)
	}

	Info().Msg("at default level")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected log file written: %v", err)
	}
}

func TestReinit(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	if err := Init(Config{Level: "info", FilePath: first}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Info().Msg("one")

	// Hot reload switches the output file.
	if err := Init(Config{Level: "info", FilePath: second}); err != nil {
		t.Fatalf("re-Init failed: %v", err)
	}
	Info().Msg("two")

	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read second log: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["message"] != "two" {
		t.Errorf("message: got %v", entry["message"])
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("Level: got %q", cfg.Level)
	}
	if cfg.FilePath == "" {
		t.Error("expected default file path")
	}
	if cfg.MaxSizeMB <= 0 || cfg.MaxBackups <= 0 {
		t.Errorf("rotation defaults: %+v", cfg)
	}
}
