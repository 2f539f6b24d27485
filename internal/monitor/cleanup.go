package monitor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"resourceruntime/internal/events"
	"resourceruntime/internal/logger"
)

// runCleanup executes the cleanup sequence. Every step runs when
// triggered: release registered caches, dispose idle resources, clear
// transient files, then hand freed pages back to the OS. Step failures
// are logged and do not stop the remaining steps.
func (m *Monitor) runCleanup(ctx context.Context) {
	log := logger.WithComponent("monitor")
	start := time.Now()

	var before uint64
	if stats, err := m.sampler.Sample(ctx); err == nil {
		before = stats.AppBytes
	}

	// 1. Registered cache-release callbacks.
	m.mu.Lock()
	release := make([]func(), len(m.releaseFuncs))
	copy(release, m.releaseFuncs)
	window := m.cfg.EvictionWindow
	dirs := m.cfg.TransientDirs
	m.mu.Unlock()
	for _, f := range release {
		f()
	}

	// 2. Dispose non-active resources idle past the eviction window.
	var disposed int
	var estFreed uint64
	if m.evictor != nil {
		disposed, estFreed = m.evictor.DisposeIdle(ctx, window)
	}

	// 3. Clear transient files.
	removed := clearTransientFiles(dirs)

	// 4. Return memory to the OS.
	runtime.GC()
	debug.FreeOSMemory()

	var after uint64
	if stats, err := m.sampler.Sample(ctx); err == nil {
		after = stats.AppBytes
	}
	var freed uint64
	if before > after {
		freed = before - after
	}

	log.Info().
		Uint64("bytes_freed", freed).
		Int("resources_disposed", disposed).
		Uint64("estimated_resource_bytes", estFreed).
		Int("transient_files_removed", removed).
		Dur("duration", time.Since(start)).
		Msg("Cleanup completed")

	m.emitter.Emit(ctx, events.TypeCleanupCompleted, map[string]string{
		"bytes_freed":        strconv.FormatUint(freed, 10),
		"resources_disposed": strconv.Itoa(disposed),
	})
}

// clearTransientFiles removes the contents of each transient directory,
// keeping the directories themselves.
func clearTransientFiles(dirs []string) int {
	log := logger.WithComponent("monitor")
	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("dir", dir).Msg("Failed to read transient directory")
			}
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to remove transient file")
				continue
			}
			removed++
		}
	}
	return removed
}
