package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
)

// GridFetcher is implemented by the service layer's GridStore. Declared here so
// the warmer does not import the service package.
type GridFetcher interface {
	Get(ctx context.Context, variable string, hour int) (*models.Grid, error)
}

// MaxHourFunc reports the last forecast hour to warm for variable.
type MaxHourFunc func(ctx context.Context, variable string) int

// CacheWarmer loads every forecast hour of a set of variables into the cache.
type CacheWarmer struct {
	fetcher     GridFetcher
	maxHour     MaxHourFunc
	hourStep    int
	concurrency int
	logger      *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. hourStep and concurrency default to 1 and 4.
func NewCacheWarmer(fetcher GridFetcher, maxHour MaxHourFunc, hourStep, concurrency int, logger *zap.Logger) *CacheWarmer {
	if hourStep <= 0 {
		hourStep = 1
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{
		fetcher:     fetcher,
		maxHour:     maxHour,
		hourStep:    hourStep,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Warm fetches hours [0, maxHour] of each variable with at most concurrency
// fetches in flight. A failed hour does not stop the others; the returned
// error reports how many failed.
func (w *CacheWarmer) Warm(ctx context.Context, variables []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Strings("variables", variables))

	var total, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, v := range variables {
		last := w.maxHour(ctx, v)
		for h := 0; h <= last; h += w.hourStep {
			variable, hour := v, h
			total.Add(1)
			g.Go(func() error {
				if _, err := w.fetcher.Get(gctx, variable, hour); err != nil {
					failed.Add(1)
					w.logger.Debug("warm fetch failed", zap.String("variable", variable), zap.Int("hour", hour), zap.Error(err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int64("grids", total.Load()),
		zap.Int64("errors", failed.Load()),
		zap.Float64("duration_seconds", duration))
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %d of %d grids failed", n, total.Load())
	}
	return nil
}

// WarmPeriodic refreshes at the given interval until ctx is done. The first
// refresh runs one interval after the call; callers warm up front with Warm.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, variables []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, variables); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
