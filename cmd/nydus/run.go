package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"nydus-hq/nydus/pkg/config"
	"nydus-hq/nydus/pkg/control"
	"nydus-hq/nydus/pkg/ports"
	"nydus-hq/nydus/pkg/process"
	"nydus-hq/nydus/pkg/proxy"
	"nydus-hq/nydus/pkg/results"
	"nydus-hq/nydus/pkg/telemetry/logging"
	"nydus-hq/nydus/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress  string
	controlAddress string
	logLevel       string
	watchConfig    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Nydus session proxy",
	Long: `Start the session proxy with the specified configuration.

The proxy opens two listeners: the game listener bots connect to, and
the control listener for administrative JSON-line sessions.

Examples:
  # Start with default config
  nydus run

  # Start with custom config
  nydus run --config /etc/nydus/config.yaml

  # Override the game listener address
  nydus run --listen 0.0.0.0:5000

  # Pick up config file edits at runtime
  nydus run --watch-config`,
	RunE: runProxy,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override game listen address")
	runCmd.Flags().StringVar(&runFlags.controlAddress, "control", "", "override control listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", false, "reload policy defaults on config file changes")
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.controlAddress != "" {
		cfg.Control.ListenAddress = runFlags.controlAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}

	logger.Info("starting nydus",
		"version", Version,
		"game_listen", cfg.Proxy.ListenAddress,
		"control_listen", cfg.Control.ListenAddress,
	)

	storage, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("results storage: %w", err)
	}
	defer storage.Close()

	allocator, err := ports.NewAllocator(cfg.Ports.Min, cfg.Ports.Max)
	if err != nil {
		return fmt.Errorf("port pool: %w", err)
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	supervisor := process.NewSupervisor(cfg.Process)

	registry := proxy.NewRegistry(proxy.RegistryOptions{
		Defaults:   cfg.MatchDefaults,
		SendBuffer: cfg.Proxy.SendBuffer,
		Launcher:   proxy.SupervisorLauncher{Supervisor: supervisor},
		Ports:      allocator,
		Storage:    storage,
		Metrics:    collector,
	})

	broadcaster := control.NewBroadcaster(cfg.Control.StatsInterval, registry, collector)
	registry.SetEventSink(broadcaster)

	if err := registry.StartReaper(cfg.Proxy.ReapSchedule); err != nil {
		return fmt.Errorf("reaper schedule: %w", err)
	}

	gameServer := proxy.NewServer(cfg.Proxy, registry, collector)
	controlServer := control.NewServer(cfg.Control, registry, storage, broadcaster, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		if err := gameServer.Serve(ctx); err != nil {
			errCh <- fmt.Errorf("game listener: %w", err)
		}
	}()
	go func() {
		if err := controlServer.Serve(ctx); err != nil {
			errCh <- fmt.Errorf("control listener: %w", err)
		}
	}()
	go broadcaster.Run(ctx)
	go func() {
		if err := metrics.Serve(ctx, collector, logger); err != nil {
			errCh <- fmt.Errorf("metrics listener: %w", err)
		}
	}()

	if runFlags.watchConfig {
		watcher, err := config.NewWatcher(cfgFile, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx, func(next *config.Config) {
					logger.Info("applying reloaded match defaults")
					registry.SetDefaults(next.MatchDefaults)
				}); err != nil {
					logger.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Error("registry shutdown incomplete", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil
	}
}

// loadRunConfig loads the config file with environment overrides. A
// missing file at the default path is not an error; the built-in
// defaults apply.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("config") {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		if verr := config.Validate(cfg); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	return nil, err
}

// openStorage builds the configured results backend.
func openStorage(cfg *config.Config) (results.Storage, error) {
	switch cfg.Results.Backend {
	case "sqlite":
		return results.NewSQLiteStorage(cfg.Results.Path)
	default:
		return results.NewMemoryStorage(), nil
	}
}
