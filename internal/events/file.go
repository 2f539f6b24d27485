package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"resourceruntime/internal/config"
	"resourceruntime/internal/logger"
)

// FileSink writes events to a rotated JSONL file and optionally echoes
// them to the console.
type FileSink struct {
	filePath    string
	writer      *lumberjack.Logger
	prettyPrint bool

	mu      sync.Mutex
	console bool
	closed  bool
}

// NewFileSink creates a new FileSink with the given configuration.
func NewFileSink(cfg config.FileSinkConfig) (*FileSink, error) {
	log := logger.WithComponent("file-sink")

	// Ensure the directory exists
	dir := filepath.Dir(cfg.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}

	log.Info().
		Str("file_path", cfg.FilePath).
		Bool("console", cfg.Console).
		Bool("pretty", cfg.Pretty).
		Msg("FileSink initialized")

	return &FileSink{
		filePath:    cfg.FilePath,
		writer:      writer,
		prettyPrint: cfg.Pretty,
		console:     cfg.Console,
	}, nil
}

// Publish writes a single event to the file and optionally to console.
func (s *FileSink) Publish(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink is closed")
	}

	var jsonData []byte
	var err error
	if s.prettyPrint {
		jsonData, err = json.MarshalIndent(ev, "", "  ")
	} else {
		jsonData, err = json.Marshal(ev)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.writer.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write to event file: %w", err)
	}

	if s.console {
		fmt.Println(string(jsonData))
	}
	return nil
}

// SetConsole toggles console echo at runtime (logging hot reload).
func (s *FileSink) SetConsole(console bool) {
	s.mu.Lock()
	s.console = console
	s.mu.Unlock()
}

// Close releases resources held by the FileSink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
