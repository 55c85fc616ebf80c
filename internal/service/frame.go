package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// AssetPaths resolves display assets for a frame.
type AssetPaths interface {
	OverlayPath(key models.GridKey) string
	ColorbarPath(key models.GridKey) string
}

// Prefetcher warms the cache in the background.
type Prefetcher interface {
	PrefetchAsync(ctx context.Context, variable string, hour int, timeout time.Duration)
}

// Frame describes the current (variable, hour) and its stepping neighbours.
type Frame struct {
	Variable     string    `json:"variable"`
	VariableName string    `json:"label"`
	Units        string    `json:"units"`
	Hour         int       `json:"hour"`
	MaxHour      int       `json:"maxHour"`
	Step         int       `json:"step"`
	Label        string    `json:"frameLabel"`
	ValidTime    time.Time `json:"validTime"`
	OverlayPath  string    `json:"overlay"`
	ColorbarPath string    `json:"colorbar"`
	Prev         int       `json:"prev"`
	Next         int       `json:"next"`
	HasPrev      bool      `json:"hasPrev"`
	HasNext      bool      `json:"hasNext"`
}

// FrameController resolves frames and warms the next one.
type FrameController struct {
	catalog         *models.Catalog
	probe           MaxHourProber
	prefetch        Prefetcher
	paths           AssetPaths
	forecastStart   time.Time
	hourStep        int
	prefetchTimeout time.Duration
	logger          *zap.Logger
}

// NewFrameController creates a FrameController. prefetch may be nil.
func NewFrameController(catalog *models.Catalog, probe MaxHourProber, prefetch Prefetcher, paths AssetPaths, forecastStart time.Time, hourStep int, prefetchTimeout time.Duration, logger *zap.Logger) *FrameController {
	if hourStep <= 0 {
		hourStep = 1
	}
	if prefetchTimeout <= 0 {
		prefetchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameController{
		catalog:         catalog,
		probe:           probe,
		prefetch:        prefetch,
		paths:           paths,
		forecastStart:   forecastStart.UTC(),
		hourStep:        hourStep,
		prefetchTimeout: prefetchTimeout,
		logger:          logger,
	}
}

// FrameLabel renders the slider label for hour.
func FrameLabel(hour int) string {
	return fmt.Sprintf("FH +%d", hour)
}

// Frame returns the frame for (variable, hour). The hour is clamped to
// [0, max]; the next frame is prefetched in the background.
func (f *FrameController) Frame(ctx context.Context, variable string, hour int) (Frame, error) {
	v, err := f.catalog.Lookup(variable)
	if err != nil {
		return Frame{}, err
	}
	rng, err := f.probe.MaxHour(ctx, variable)
	if err != nil {
		return Frame{}, err
	}
	hour = max(0, min(hour, rng.MaxHour))
	key := models.GridKey{Variable: variable, Hour: hour}

	fr := Frame{
		Variable:     variable,
		VariableName: v.Label,
		Units:        v.Units,
		Hour:         hour,
		MaxHour:      rng.MaxHour,
		Step:         f.hourStep,
		Label:        FrameLabel(hour),
		ValidTime:    f.forecastStart.Add(time.Duration(hour) * time.Hour),
		OverlayPath:  f.paths.OverlayPath(key),
		ColorbarPath: f.paths.ColorbarPath(key),
		Prev:         max(0, hour-f.hourStep),
		Next:         min(rng.MaxHour, hour+f.hourStep),
		HasPrev:      hour > 0,
		HasNext:      hour < rng.MaxHour,
	}
	if fr.HasNext && f.prefetch != nil {
		f.prefetch.PrefetchAsync(ctx, variable, fr.Next, f.prefetchTimeout)
		loggerFromContext(ctx, f.logger).Debug("prefetching next frame", zap.String("variable", variable), zap.Int("hour", fr.Next))
	}
	return fr, nil
}
