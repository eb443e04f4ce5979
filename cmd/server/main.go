package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tidewater-labs/plantpulse/internal/alerting"
	"github.com/tidewater-labs/plantpulse/internal/api"
	"github.com/tidewater-labs/plantpulse/internal/api/health"
	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/normalize"
	"github.com/tidewater-labs/plantpulse/internal/notifier"
	"github.com/tidewater-labs/plantpulse/internal/pipeline"
	"github.com/tidewater-labs/plantpulse/internal/scorer"
	"github.com/tidewater-labs/plantpulse/internal/storage"
	"github.com/tidewater-labs/plantpulse/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "plantpulse-server",
	Short: "PlantPulse Server - Industrial sensor monitoring pipeline",
	Long: `PlantPulse Server ingests sensor readings from factory devices,
scores them for anomalies, and drives alerting and notification
dispatch for plant operators.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("plantpulse-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Alert and notification persistence
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// Optional readings archive
	var archive pipeline.ReadingArchive
	var chStore *storage.ClickHouseStorage
	var buffer *storage.ReadingBuffer
	if cfg.ClickHouse.Enabled {
		chStore = storage.NewClickHouseStorage(&storage.ClickHouseConfig{
			Addresses:     cfg.ClickHouse.Addresses,
			Database:      cfg.ClickHouse.Database,
			Username:      cfg.ClickHouse.Username,
			Password:      cfg.ClickHouse.Password,
			RetentionDays: cfg.ClickHouse.RetentionDays,
		})
		if err := chStore.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chStore.Close()

		if err := chStore.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}

		buffer = storage.NewReadingBuffer(chStore.Readings(), &storage.ReadingBufferConfig{
			BatchSize:     cfg.ClickHouse.BatchSize,
			FlushInterval: cfg.ClickHouse.FlushInterval,
			MaxSize:       cfg.ClickHouse.MaxBuffer,
		}, logger)
		defer buffer.Close()
		archive = buffer

		logger.Info("readings archive enabled",
			zap.Strings("addresses", cfg.ClickHouse.Addresses),
			zap.Int("retention_days", cfg.ClickHouse.RetentionDays))
	}

	// Core pipeline components
	scr := scorer.New(cfg.ScorerConfig(), logger)

	manager := alerting.NewManager(alerting.Config{
		RenotifyCooldown: cfg.Alerting.RenotifyCooldown,
		AutoResolveCount: cfg.Alerting.AutoResolveCount,
		EventBufferSize:  cfg.Alerting.EventBufferSize,
	}, store, logger)
	defer manager.Close()

	// Acknowledged low-severity alerts release their readings back into
	// the baseline statistics.
	scr.SetNoiseAcknowledged(manager.IsNoiseAcknowledged)

	dispatcher := notifier.NewDispatcher(cfg.DispatcherConfig(), manager, store, logger)
	if err := registerSenders(dispatcher, cfg); err != nil {
		return err
	}
	dispatcher.Start()
	defer dispatcher.Close()

	normalizer := normalize.New(cfg.Pipeline.SkewTolerance, logger)

	coordinator := pipeline.New(pipeline.Config{
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
	}, normalizer, scr, manager, archive, logger)

	// HTTP API
	apiServer, err := api.New(&api.Config{
		Address:          cfg.Server.HTTPAddress,
		IngestRatePerMin: cfg.Server.IngestRatePerMin,
		Verbose:          cfg.Verbose,
	}, api.Deps{
		Coordinator: coordinator,
		Scorer:      scr,
		Manager:     manager,
		Dispatcher:  dispatcher,
	}, logger)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	apiServer.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	apiServer.RegisterHealthChecker(health.NewPipelineChecker(coordinator.Running))
	if chStore != nil {
		apiServer.RegisterHealthChecker(health.NewClickHouseChecker(chStore))
	}

	metricsServer := metrics.NewServer(cfg.Server.MetricsAddress, logger)

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	coordinator.Start(ctx)
	defer coordinator.Stop()

	logger.Info("starting plantpulse-server",
		zap.String("version", config.Version),
		zap.String("http_address", cfg.Server.HTTPAddress),
		zap.String("metrics_address", cfg.Server.MetricsAddress))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Run(gctx)
	})

	g.Go(func() error {
		return metricsServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		dispatcher.Run(gctx, manager.Events())
		return nil
	})

	g.Go(func() error {
		runRetentionSweep(gctx, cfg.Alerting.RetentionWindow, store.Alerts(), manager, dispatcher, logger)
		return nil
	})

	if configFile != "" {
		g.Go(func() error {
			return watchConfig(gctx, configFile, logger, scr, dispatcher)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// retentionSweepInterval is how often resolved alerts past the
// retention window are removed from the database and the in-memory
// indexes. The window itself comes from alerting.retention_window.
const retentionSweepInterval = time.Hour

func runRetentionSweep(ctx context.Context, window time.Duration, alerts storage.AlertRepository, manager *alerting.Manager, dispatcher *notifier.Dispatcher, logger *zap.Logger) {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-window)
		deleted, err := alerts.DeleteResolvedBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("retention sweep failed", zap.Error(err))
			continue
		}
		prunedAlerts := manager.PruneResolvedBefore(cutoff)
		prunedJobs := dispatcher.PruneSettledBefore(cutoff)
		if deleted > 0 || prunedAlerts > 0 || prunedJobs > 0 {
			logger.Info("retention sweep completed",
				zap.Int64("rows_deleted", deleted),
				zap.Int("alerts_pruned", prunedAlerts),
				zap.Int("jobs_pruned", prunedJobs),
				zap.Time("cutoff", cutoff))
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func registerSenders(d *notifier.Dispatcher, cfg *Config) error {
	if cfg.Notifier.Email.Enabled {
		s, err := notifier.NewEmailSender(cfg.Notifier.Email.EmailConfig)
		if err != nil {
			return fmt.Errorf("email sender: %w", err)
		}
		d.RegisterSender(s)
	}
	if cfg.Notifier.SMS.Enabled {
		s, err := notifier.NewSMSSender(cfg.Notifier.SMS.SMSConfig)
		if err != nil {
			return fmt.Errorf("sms sender: %w", err)
		}
		d.RegisterSender(s)
	}
	if cfg.Notifier.Push.Enabled {
		s, err := notifier.NewPushSender(cfg.Notifier.Push.PushConfig)
		if err != nil {
			return fmt.Errorf("push sender: %w", err)
		}
		d.RegisterSender(s)
	}
	return nil
}
