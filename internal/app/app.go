// Package app wires the grid viewer components from configuration. Both the
// HTTP service and the CLI build one App and drive the core through it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/wrf-grid-viewer/internal/cache"
	"github.com/kjstillabower/wrf-grid-viewer/internal/client"
	"github.com/kjstillabower/wrf-grid-viewer/internal/config"
	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/sampler"
	"github.com/kjstillabower/wrf-grid-viewer/internal/service"
	"github.com/kjstillabower/wrf-grid-viewer/internal/traffic"
)

// App is the explicit application context.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Paths      *client.PathResolver
	Source     client.GridSource
	Cache      cache.Cache
	Tracker    *traffic.Tracker
	Catalog    *models.Catalog
	Store      *service.GridStore
	Probe      *service.HourRangeProbe
	Sampler    *sampler.Sampler
	Aggregator *service.Aggregator
	Frames     *service.FrameController
	Warmer     *cache.CacheWarmer

	memcached *cache.MemcachedCache
}

// New builds an App. The MinIO source connects during construction, so ctx
// bounds that check.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	paths, err := client.NewPathResolver(cfg.GridPaths, cfg.OverlayPath, cfg.ColorbarPath)
	if err != nil {
		return nil, fmt.Errorf("grid paths: %w", err)
	}
	a.Paths = paths

	if a.Source, err = newSource(ctx, cfg, paths, logger); err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.MemcachedExpiration)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcached = mc
		a.Cache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		a.Cache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	if a.Catalog, err = models.NewCatalog(cfg.Variables); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}

	a.Tracker = traffic.New(0)
	a.Sampler = sampler.New(cfg.Domain)
	a.Store = service.NewGridStore(a.Source, a.Cache, service.StoreOptions{
		CacheType:       cacheType(cfg.CacheBackend),
		Domain:          cfg.Domain,
		PlaceholderRows: cfg.PlaceholderRows,
		PlaceholderCols: cfg.PlaceholderCols,
	}, a.Tracker, logger)
	a.Probe = service.NewHourRangeProbe(a.Source, service.ProbeConfig{
		Known:          knownMaxHours(cfg),
		DefaultMaxHour: cfg.DefaultMaxHour,
		Ceiling:        cfg.HourCeiling,
		Checkpoints:    cfg.Checkpoints,
		ScanAll:        cfg.ScanAll,
		TTL:            cfg.ProbeTTL,
	}, logger)
	a.Aggregator = service.NewAggregator(a.Store, a.Probe, a.Sampler, cfg.ForecastStart, cfg.HourStep, logger)
	a.Frames = service.NewFrameController(a.Catalog, a.Probe, a.Store, a.Paths, cfg.ForecastStart, cfg.HourStep, cfg.PrefetchTimeout, logger)
	a.Warmer = cache.NewCacheWarmer(a.Store, a.warmMaxHour, cfg.HourStep, cfg.WarmConcurrency, logger)
	return a, nil
}

func newSource(ctx context.Context, cfg *config.Config, paths *client.PathResolver, logger *zap.Logger) (client.GridSource, error) {
	switch cfg.DataBackend {
	case "minio":
		src, err := client.NewMinIOSource(ctx, client.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Prefix:    cfg.MinIO.Prefix,
			UseSSL:    cfg.MinIO.UseSSL,
		}, paths)
		if err != nil {
			return nil, fmt.Errorf("minio source: %w", err)
		}
		logger.Info("grid source: minio", zap.String("endpoint", cfg.MinIO.Endpoint), zap.String("bucket", cfg.MinIO.Bucket))
		return src, nil
	default:
		src, err := client.NewHTTPSourceWithRetry(
			cfg.DataBaseURL,
			paths,
			cfg.DataTimeout,
			cfg.RetryAttempts,
			cfg.RetryBaseDelay,
			cfg.RetryMaxDelay,
		)
		if err != nil {
			return nil, fmt.Errorf("http source: %w", err)
		}
		src.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{
			Name:             "grid_source",
			FailureThreshold: cfg.BreakerFailureThreshold,
			HalfOpenRequests: cfg.BreakerHalfOpenRequests,
			Timeout:          cfg.BreakerTimeout,
		}))
		logger.Info("grid source: http",
			zap.String("base_url", cfg.DataBaseURL),
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold))
		return src, nil
	}
}

// knownMaxHours merges the forecast-wide known max hour with per-variable overrides.
func knownMaxHours(cfg *config.Config) map[string]int {
	known := make(map[string]int, len(cfg.Variables))
	for _, v := range cfg.Variables {
		switch {
		case v.MaxHour > 0:
			known[v.Name] = v.MaxHour
		case cfg.KnownMaxHour >= 0:
			known[v.Name] = cfg.KnownMaxHour
		}
	}
	return known
}

func cacheType(backend string) string {
	if backend == "memcached" {
		return "memcached"
	}
	return "memory"
}

func (a *App) warmMaxHour(ctx context.Context, variable string) int {
	r, err := a.Probe.MaxHour(ctx, variable)
	if err != nil {
		a.Logger.Debug("max hour probe interrupted during warm", zap.String("variable", variable), zap.Error(err))
	}
	return r.MaxHour
}

// CachePing checks the shared cache backend. It is nil for the in-memory cache.
func (a *App) CachePing() func() error {
	if a.memcached == nil {
		return nil
	}
	return a.memcached.Ping
}

// Close releases backend connections.
func (a *App) Close() error {
	if a.memcached != nil {
		return a.memcached.Close()
	}
	return nil
}
