// Package main is the entry point for the resource runtime daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"resourceruntime/internal/config"
	"resourceruntime/internal/events"
	"resourceruntime/internal/lifecycle"
	"resourceruntime/internal/logger"
	"resourceruntime/internal/monitor"
	"resourceruntime/internal/resource"
	"resourceruntime/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "conf/Runtime.json", "Path to runtime configuration file")
		loggingPath = flag.String("logging", "conf/Logging.json", "Path to logging configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("resourceruntime %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, lc, err := config.LoadSplit(*configPath, *loggingPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(*lc); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("config", *configPath).
		Str("logging", *loggingPath).
		Msg("Starting resource runtime")

	if err := run(cfg, *configPath, *loggingPath); err != nil {
		log.Fatal().Err(err).Msg("Runtime exited with error")
	}

	log.Info().Msg("Resource runtime stopped")
}

func run(cfg *config.Config, configPath, loggingPath string) error {
	log := logger.WithComponent("main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostname := config.GetHostname()
	log.Info().
		Str("runtime_id", cfg.RuntimeID).
		Str("hostname", hostname).
		Msg("Runtime initialized")

	// Phase 1: Snapshot store
	st, err := store.NewStore(cfg.Store, cfg.SOCKS)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing snapshot store")
		}
	}()

	// Phase 2: Event sink
	sink, err := events.NewSink(cfg.Events, cfg.SOCKS)
	if err != nil {
		return fmt.Errorf("failed to create event sink: %w", err)
	}
	defer func() {
		log.Info().Msg("Closing event sink")
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event sink")
		}
	}()
	emitter := events.NewEmitter(sink, cfg.RuntimeID, hostname)

	// Phase 3: Resource registry
	registry := resource.NewRegistry(resource.Config{
		SlowOpTimeout:    cfg.Registry.SlowOpTimeout,
		MaxDisposePasses: cfg.Registry.MaxDisposePasses,
	}, emitter)

	// Phase 4: Memory monitor and leak detector
	mon, err := monitor.New(cfg.Monitor, nil, registry, emitter, nil)
	if err != nil {
		return fmt.Errorf("failed to create memory monitor: %w", err)
	}
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start memory monitor: %w", err)
	}
	defer mon.Stop()

	leaks := monitor.NewLeakDetector(cfg.Leak, emitter, nil)
	if err := leaks.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leak detector: %w", err)
	}
	defer leaks.Stop()

	// Phase 5: Lifecycle coordinator
	criticalKinds := make([]resource.Kind, 0, len(cfg.Lifecycle.CriticalKinds))
	for _, k := range cfg.Lifecycle.CriticalKinds {
		criticalKinds = append(criticalKinds, resource.Kind(k))
	}
	coord := lifecycle.New(registry, mon, st, emitter, lifecycle.Config{
		CriticalKinds: criticalKinds,
	})

	// Phase 6: Hot-reload watchers
	cleanupWatchers := setupWatchers(mon, configPath, loggingPath)
	defer cleanupWatchers()

	coord.HandleEvent(ctx, lifecycle.EventLaunched)

	// Map OS signals onto lifecycle events. SIGUSR1/SIGUSR2 simulate
	// background/foreground for testing against a live process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			coord.HandleEvent(ctx, lifecycle.EventBackground)
		case syscall.SIGUSR2:
			coord.HandleEvent(ctx, lifecycle.EventForeground)
		default:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			coord.HandleEvent(ctx, lifecycle.EventTerminate)
			return nil
		}
	}
	return nil
}

// setupWatchers creates hot-reload watchers for the runtime and logging
// config files. Returns a cleanup function that stops started watchers.
func setupWatchers(mon *monitor.Monitor, configPath, loggingPath string) func() {
	log := logger.WithComponent("main")
	var cleanups []func()

	runtimeWatcher, err := config.NewRuntimeWatcher(configPath, func(newCfg *config.Config) {
		log.Info().Msg("Applying runtime configuration changes")
		mon.Reconfigure(newCfg.Monitor)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create runtime watcher, hot reload disabled")
	} else if err := runtimeWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start runtime watcher")
	} else {
		cleanups = append(cleanups, func() {
			if err := runtimeWatcher.Stop(); err != nil {
				log.Error().Err(err).Msg("Error stopping runtime watcher")
			}
		})
	}

	loggingWatcher, err := config.NewLoggingWatcher(loggingPath, func(newLC *logger.Config) {
		log.Info().Msg("Applying logging configuration changes")
		if err := logger.Init(*newLC); err != nil {
			log.Error().Err(err).Msg("Failed to update logging configuration")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create logging watcher, hot reload disabled")
	} else if err := loggingWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start logging watcher")
	} else {
		cleanups = append(cleanups, func() {
			if err := loggingWatcher.Stop(); err != nil {
				log.Error().Err(err).Msg("Error stopping logging watcher")
			}
		})
	}

	return func() {
		// Stop in reverse order
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}
