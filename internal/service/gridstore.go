// Package service holds the grid viewer core: the grid store, the forecast
// hour probe, the time series aggregator and the frame controller.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/wrf-grid-viewer/internal/cache"
	"github.com/kjstillabower/wrf-grid-viewer/internal/client"
	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
	"github.com/kjstillabower/wrf-grid-viewer/internal/traffic"
)

// ErrDataUnavailable wraps any fetch or validation failure for one grid.
var ErrDataUnavailable = errors.New("grid data unavailable")

// errFlightCanceled marks a shared fetch that failed because the caller that
// started it was canceled.
var errFlightCanceled = errors.New("fetch canceled by its caller")

// StoreOptions configures a GridStore.
type StoreOptions struct {
	// CacheType labels cache metrics ("memory" or "memcached").
	CacheType       string
	Domain          models.Domain
	PlaceholderRows int
	PlaceholderCols int
}

// GridStore fetches, validates and caches grids by (variable, hour).
// Concurrent misses on the same key share one upstream fetch.
type GridStore struct {
	source  client.GridSource
	cache   cache.Cache
	opts    StoreOptions
	group   singleflight.Group
	tracker *traffic.Tracker
	logger  *zap.Logger
}

// NewGridStore creates a GridStore. tracker and logger may be nil.
func NewGridStore(source client.GridSource, c cache.Cache, opts StoreOptions, tracker *traffic.Tracker, logger *zap.Logger) *GridStore {
	if opts.CacheType == "" {
		opts.CacheType = "memory"
	}
	if opts.PlaceholderRows <= 0 {
		opts.PlaceholderRows = 50
	}
	if opts.PlaceholderCols <= 0 {
		opts.PlaceholderCols = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GridStore{source: source, cache: c, opts: opts, tracker: tracker, logger: logger}
}

// loggerFromContext returns the request-scoped logger if the HTTP layer set one.
func loggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return fallback
}

// Get returns the grid for (variable, hour). A cached grid is returned without
// I/O; otherwise the document is fetched, validated and cached. Failures are
// reported as ErrDataUnavailable.
func (s *GridStore) Get(ctx context.Context, variable string, hour int) (*models.Grid, error) {
	key := models.GridKey{Variable: variable, Hour: hour}
	logger := loggerFromContext(ctx, s.logger)

	if g, ok := s.lookup(ctx, key); ok {
		logger.Debug("cache hit", zap.Stringer("key", key))
		return g, nil
	}
	observability.CacheMissesTotal.WithLabelValues(s.opts.CacheType).Inc()

	v, err, shared := s.group.Do(key.String(), func() (interface{}, error) {
		return s.load(ctx, key)
	})
	// The flight ran under the first caller's context. If that caller went
	// away, callers that are still live start a new flight.
	for err != nil && errors.Is(err, errFlightCanceled) && ctx.Err() == nil {
		logger.Debug("shared grid fetch canceled, retrying", zap.Stringer("key", key))
		v, err, shared = s.group.Do(key.String(), func() (interface{}, error) {
			return s.load(ctx, key)
		})
	}
	if err != nil {
		category := client.CategorizeError(err)
		observability.GridUnavailableTotal.WithLabelValues(variable, string(category)).Inc()
		if category == client.ErrorCategoryNotFound {
			logger.Debug("grid not found", zap.Stringer("key", key))
		} else {
			logger.Warn("grid unavailable", zap.Stringer("key", key), zap.String("category", string(category)), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, key, err)
	}
	if shared {
		logger.Debug("grid fetch coalesced", zap.Stringer("key", key))
	}
	return v.(*models.Grid), nil
}

// load runs inside a flight. A failure caused by the flight owner's own
// cancellation is marked with errFlightCanceled.
func (s *GridStore) load(ctx context.Context, key models.GridKey) (*models.Grid, error) {
	// A flight that finished just before this one may have filled the cache.
	if g, ok := s.lookup(ctx, key); ok {
		return g, nil
	}
	g, err := s.fetch(ctx, key)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", errFlightCanceled, err)
	}
	return g, err
}

func (s *GridStore) lookup(ctx context.Context, key models.GridKey) (*models.Grid, bool) {
	g, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		loggerFromContext(ctx, s.logger).Warn("cache get failed", zap.Stringer("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || g == nil {
		return nil, false
	}
	observability.CacheHitsTotal.WithLabelValues(s.opts.CacheType).Inc()
	return g, true
}

func (s *GridStore) fetch(ctx context.Context, key models.GridKey) (*models.Grid, error) {
	body, err := s.source.FetchGrid(ctx, key)
	if err != nil {
		if !errors.Is(err, client.ErrNotFound) && ctx.Err() == nil {
			s.tracker.RecordError()
		}
		return nil, err
	}
	g, err := models.ParseGrid(body)
	if err != nil {
		s.tracker.RecordError()
		return nil, err
	}
	s.tracker.RecordSuccess()

	if setErr := s.cache.Set(ctx, key, g); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		loggerFromContext(ctx, s.logger).Warn("cache set failed", zap.Stringer("key", key), zap.Error(setErr))
	}
	return g, nil
}

// GetOrPlaceholder returns the real grid, or a synthetic placeholder covering
// the domain when the real one is unavailable. The placeholder is never cached.
// Only context cancellation is returned as an error.
func (s *GridStore) GetOrPlaceholder(ctx context.Context, variable string, hour int) (*models.Grid, bool, error) {
	g, err := s.Get(ctx, variable, hour)
	if err == nil {
		return g, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}
	observability.PlaceholderServesTotal.WithLabelValues(variable).Inc()
	key := models.GridKey{Variable: variable, Hour: hour}
	return models.Placeholder(key, s.opts.Domain, s.opts.PlaceholderRows, s.opts.PlaceholderCols), true, nil
}

// Prefetch loads (variable, hour) into the cache, ignoring any failure.
func (s *GridStore) Prefetch(ctx context.Context, variable string, hour int) {
	_, _ = s.Get(ctx, variable, hour)
}

// PrefetchAsync runs Prefetch in the background, detached from ctx's
// cancellation but bounded by timeout.
func (s *GridStore) PrefetchAsync(ctx context.Context, variable string, hour int, timeout time.Duration) {
	bg := context.WithoutCancel(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		s.Prefetch(pctx, variable, hour)
	}()
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, malformed, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, models.ErrMalformedGrid) {
		return "malformed"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
