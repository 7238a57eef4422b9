package rewardsd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rewardvault/observability"
	"rewardvault/observability/logging"
	telemetry "rewardvault/observability/otel"
	"rewardvault/services/rewardsd/middleware"
	"rewardvault/storage"
)

const noncePruneInterval = time.Minute

// Main initialises and runs the reward ledger daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/rewardsd/config.yaml", "path to rewardsd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("REWARDVAULT_ENV"))
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	logger := logging.Setup("rewardsd", env, logging.Options{
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Level:      level,
	})

	endpoint := cfg.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "rewardsd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ledger := NewLedger(db,
		WithProgramID(cfg.Program()),
		WithMinClaim(cfg.MinClaim),
		WithRequestTTL(cfg.RequestTTL.Duration),
		WithMetrics(NewMetrics()),
		WithLogger(logger),
		WithEmitter(observability.LogEmitter{Logger: logger}),
	)
	if cfg.PauseOnStart {
		ledger.Pause()
	}

	limit := middleware.RateLimit{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst}
	server := NewServer(ledger, ServerOptions{
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Admin.HMACSecret,
			Issuer:     cfg.Admin.Issuer,
			Audience:   cfg.Admin.Audience,
		},
		Public:    limit,
		Admin:     limit,
		Logger:    logger,
		RateLimit: cfg.RateLimit.RequestsPerMinute > 0,
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneNonces(stopCtx, db, cfg.RequestTTL.Duration, logger)

	errs := make(chan error, 1)
	go func() {
		logger.Info("rewardsd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("program", ledger.Program().String()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// pruneNonces drops nonces older than twice the request ttl until ctx ends.
func pruneNonces(ctx context.Context, db storage.Database, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(noncePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := PruneNonces(db, now.Add(-2*ttl))
			if err != nil {
				logger.Warn("nonce prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("pruned request nonces", slog.Int("removed", removed))
			}
		}
	}
}
