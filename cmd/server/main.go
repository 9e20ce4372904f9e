// Command courses-server starts the course library HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/course-keeper/internal/app"
	"github.com/and161185/course-keeper/internal/config"
	httpserver "github.com/and161185/course-keeper/internal/server/http"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// main loads configuration, wires the services and serves HTTP until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("config", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("bad LOG_LEVEL, using info", zap.String("level", cfg.LogLevel))
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("remote", cfg.DatabaseURL != ""),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	medium, closeMedium, err := app.OpenMedium(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeMedium()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := app.FromConfig(cfg)
	opts.Medium = medium
	opts.Registerer = reg
	opts.Log = logger
	a, err := app.New(ctx, opts)
	if err != nil {
		logger.Fatal("wire services", zap.Error(err))
	}
	defer a.Close()

	deps := a.HTTPDeps(reg, cfg.CORSOrigins)
	deps.TrustProxy = cfg.TrustProxy
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.New(deps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
