package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/internal/telemetry"
	"github.com/marmos91/arcfs/pkg/config"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/manager"
	"github.com/marmos91/arcfs/pkg/metrics"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <archive>...",
		Short: "Keep archives mounted and synchronized",
		Long: `Mount the given archives and keep them open until interrupted.

Changes are synced every sync.interval. When watch.enabled is set, an
archive replaced by another process is invalidated and reloaded on next
access. With metrics.enabled, Prometheus metrics are served on
metrics.port. On SIGINT or SIGTERM every archive is synced a last time.

Examples:
  arcfs watch /data/backup.tar.gz /data/notes.tar.raes
  ARCFS_LOGGING_LEVEL=DEBUG arcfs watch /data/a.tar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts.cfg, args)
		},
	}
}

// runWatch serves until ctx is done.
func runWatch(ctx context.Context, cfg *config.Config, archives []string) error {
	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	var (
		lockMetrics    *lock.Metrics
		managerMetrics *manager.Metrics
	)
	// Stays nil, and never ready, without a metrics server.
	var metricsDone chan error
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		lockMetrics = lock.NewMetrics(reg)
		managerMetrics = manager.NewMetrics(reg)

		server, err := metrics.NewServer(cfg.Metrics.Port, reg)
		if err != nil {
			return err
		}
		metricsDone = make(chan error, 1)
		go func() { metricsDone <- server.Start(ctx) }()
	}

	var m manager.Manager
	m, err = manager.NewInstrumented(manager.NewDefault(lockMetrics), managerMetrics)
	if err != nil {
		return err
	}
	if cfg.Watch.IsEnabled() {
		w, err := manager.NewWatching(m)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		m = w
	}
	syncing, err := manager.NewSyncing(m, cfg.Sync.Interval)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, syncing)
	if err != nil {
		return err
	}
	for _, arg := range archives {
		if err := mountArchive(ctx, s, arg); err != nil {
			return err
		}
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	syncing.Start(loopCtx)
	logger.Info("Watching archives. Press Ctrl+C to stop.", logger.KeyCount, syncing.Size())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, syncing archives")
	case serveErr = <-metricsDone:
		if serveErr != nil {
			logger.Error("Metrics server failed, shutting down", logger.Err(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if cfg.Sync.Unmount() {
		err = syncing.Shutdown(shutdownCtx)
	} else {
		stopLoop()
		err = syncing.Sync(shutdownCtx, controller.SyncOptions{})
	}
	if err != nil {
		return fmt.Errorf("final sync failed: %w", err)
	}
	return serveErr
}

// mountArchive loads the archive named by arg so that problems such as a
// wrong password surface at startup.
func mountArchive(ctx context.Context, s *session, arg string) error {
	c, target, err := s.open(ctx, arg)
	if err != nil {
		return err
	}
	if target.Entry != "" {
		return fmt.Errorf("%s names an entry, not an archive", arg)
	}
	if err := s.requireArchive(ctx, c); err != nil {
		return err
	}
	entries, err := c.ReadDir(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to mount %s: %w", arg, err)
	}
	logger.InfoCtx(withController(ctx, c), "Archive mounted", logger.KeyEntries, len(entries))
	return nil
}

// initTelemetry starts tracing and profiling as configured. The returned
// function stops both.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(), error) {
	tracingShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "arcfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "arcfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = tracingShutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	return func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
		if err := tracingShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}, nil
}
