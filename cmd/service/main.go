package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wrf-grid-viewer/internal/app"
	"github.com/kjstillabower/wrf-grid-viewer/internal/config"
	httphandler "github.com/kjstillabower/wrf-grid-viewer/internal/http"
	"github.com/kjstillabower/wrf-grid-viewer/internal/lifecycle"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	initCancel()
	if err != nil {
		logger.Fatal("application init", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinSamples: cfg.DegradedMinSamples,
		CachePing:          a.CachePing(),
	}
	handler := httphandler.NewHandler(a, healthConfig, cfg.TimeseriesTimeout, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Limiter:        newLimiter(cfg),
		Tracker:        a.Tracker,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Time series runs outlive the regular request timeout.
		WriteTimeout: cfg.TimeseriesTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Time("forecast_start", cfg.ForecastStart))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go startup(ctx, a, cfg, logger)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if inFlight := httphandler.InFlightCount(); inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		logger.Error("backend close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// startup detects each variable's hour range, optionally warms the cache, then
// marks the service ready. Periodic warming continues until ctx ends.
func startup(ctx context.Context, a *app.App, cfg *config.Config, logger *zap.Logger) {
	for _, name := range a.Catalog.Names() {
		r, err := a.Probe.MaxHour(ctx, name)
		if err != nil {
			return
		}
		logger.Info("forecast range", zap.String("variable", name), zap.Int("max_hour", r.MaxHour), zap.String("source", r.Source))
	}

	if cfg.WarmEnabled && len(cfg.WarmVariables) > 0 {
		if err := a.Warmer.Warm(ctx, cfg.WarmVariables); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
	}
	lifecycle.SetReady(true)
	logger.Info("service ready")

	if cfg.WarmEnabled && len(cfg.WarmVariables) > 0 && cfg.WarmInterval > 0 {
		if err := a.Warmer.WarmPeriodic(ctx, cfg.WarmVariables, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}
}

func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}
