package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/meridian-os/appscope/internal/api"
	"github.com/meridian-os/appscope/internal/deviceconfig"
	"github.com/meridian-os/appscope/internal/filter"
	"github.com/meridian-os/appscope/internal/storage"
	"github.com/meridian-os/appscope/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("APPSCOPE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("APPSCOPE_HTTP_PORT", "8080")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	profilePath := os.Getenv("APPSCOPE_DEVICE_PROFILE")
	adminTokenHash := os.Getenv("APPSCOPE_ADMIN_TOKEN_HASH")

	logger.Info("starting appscope server",
		zap.String("http_port", httpPort),
		zap.String("device_profile", profilePath),
	)

	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	if adminTokenHash == "" {
		logger.Fatal("APPSCOPE_ADMIN_TOKEN_HASH is required")
	}

	// Device profile — force-queryable list and system-apps-queryable flag,
	// read once at construction.
	profile, err := deviceconfig.LoadProfile(profilePath)
	if err != nil {
		logger.Fatal("failed to load device profile", zap.Error(err))
	}

	// Postgres — the authoritative package table the index is rebuilt from.
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	settings, users, err := store.NewStore(db).LoadState(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatal("failed to load package table", zap.Error(err))
	}
	logger.Info("package table loaded",
		zap.Int("packages", len(settings)),
		zap.Int("users", len(users)),
	)

	memState := store.NewMemState(users)

	// Feature config — master switch and per-package compat flag. The static
	// sources serve deployments without a remote config channel; they keep
	// their defaults (filtering on, every package enabled), and no API route
	// changes them.
	source := deviceconfig.NewStaticSource()
	compat := deviceconfig.NewStaticCompat()
	featureFlags := deviceconfig.NewFeatureFlags(source, compat, memState.Lookup, logger)

	executor := filter.NewSerialExecutor()
	defer executor.Stop()

	visFilter := filter.New(filter.Config{
		StateProvider:                  memState,
		FeatureConfig:                  featureFlags,
		ForceQueryablePackages:         profile.ForceQueryablePackages,
		SystemAppsQueryable:            profile.SystemAppsQueryable,
		PlatformEquivalentFingerprints: profile.PlatformEquivalentFingerprints,
		Background:                     executor,
		Logger:                         logger,
	})
	featureFlags.SetFilter(visFilter)

	// Replay the stored packages into the filter in install order, then
	// declare the system ready; the decision cache builds in the background.
	for _, setting := range settings {
		memState.Upsert(setting)
		visFilter.AddPackage(setting, false)
	}
	visFilter.OnSystemReady()
	logger.Info("visibility index built")

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	deps := &api.Dependencies{
		State:          memState,
		Filter:         visFilter,
		Writer:         writer,
		Logger:         logger,
		AdminTokenHash: adminTokenHash,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("appscope server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
