package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracklight-systems/tracklight/internal/batcher"
	"github.com/tracklight-systems/tracklight/internal/config"
	"github.com/tracklight-systems/tracklight/internal/handlers"
	"github.com/tracklight-systems/tracklight/internal/logging"
	"github.com/tracklight-systems/tracklight/internal/server"
	"github.com/tracklight-systems/tracklight/internal/spool"
	"github.com/tracklight-systems/tracklight/internal/tenant"
	"github.com/tracklight-systems/tracklight/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting collector",
		slog.Int("port", cfg.Server.Port),
		slog.String("transport", cfg.Ingest.Transport),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Transport gate
	var gate transport.Gate
	var natsGate *transport.NATSGate
	switch cfg.Ingest.Transport {
	case "nats":
		natsCfg := transport.DefaultNATSConfig()
		natsCfg.URL = cfg.Ingest.NatsURL
		natsCfg.SubjectPrefix = cfg.Ingest.SubjectPrefix
		natsGate, err = transport.NewNATSGate(natsCfg)
		if err != nil {
			return fmt.Errorf("connect nats gate: %w", err)
		}
		gate = natsGate
		defer natsGate.Close()
	default:
		gate = transport.NewHTTPGate(cfg.Ingest.URL, cfg.Ingest.Timeout)
	}

	// Durable spool for unsent batches
	var batchSpool spool.Spool = spool.Noop{}
	if cfg.Spool.Enabled {
		redisSpool, err := spool.NewRedisSpool(cfg.Spool.RedisURL, cfg.Spool.Key)
		if err != nil {
			slog.Warn("failed to initialize spool, continuing without durable capture",
				logging.Error(err))
		} else {
			batchSpool = redisSpool
			gate = transport.NewSpooledGate(gate, redisSpool, logger)
			defer redisSpool.Close()
			slog.Info("spool enabled", slog.String("key", cfg.Spool.Key))
		}
	}

	resolver := tenant.NewResolver(
		tenant.SourceFunc(func() (string, bool) {
			return os.Getenv("TRACKLIGHT_TENANT_ID"), os.Getenv("TRACKLIGHT_TENANT_ID") != ""
		}),
		tenant.StaticSource(cfg.Tenant.ID),
	)

	manager := batcher.NewManager(resolver, gate, batcher.Config{
		SamplingRate:          cfg.Pipeline.SamplingRate,
		Enabled:               cfg.Pipeline.Enabled,
		BatchSize:             cfg.Pipeline.BatchSize,
		CriticalFlushInterval: cfg.Pipeline.CriticalFlushInterval,
		FlushInterval:         cfg.Pipeline.FlushInterval,
		DebounceWindow:        cfg.Pipeline.DebounceWindow,
	}, logger)

	// Replay batches captured on a previous run before taking traffic.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.DrainSpool(drainCtx, batchSpool); err != nil {
		slog.Warn("spool drain incomplete", logging.Error(err))
	}
	drainCancel()

	handler := handlers.NewCollectHandler(manager, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logging.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down collector")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced to shutdown", logging.Error(err))
	}

	// Best-effort final flush of all tenant queues.
	manager.Close()

	slog.Info("collector stopped")
	return nil
}
