package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
	"github.com/kjstillabower/wrf-grid-viewer/internal/sampler"
	"github.com/kjstillabower/wrf-grid-viewer/internal/timeseries"
)

var (
	// ErrOutOfDomain is returned for a location outside the model domain.
	ErrOutOfDomain = errors.New("location outside forecast domain")
	// ErrSuperseded is returned by a run replaced by a newer run for the same viewer.
	ErrSuperseded = errors.New("time series run superseded")
	// ErrGridMismatch marks an hour whose grid shape differs from the series' first grid.
	ErrGridMismatch = fmt.Errorf("%w: grid shape mismatch", ErrDataUnavailable)
)

// GridGetter is the read side of GridStore used by the aggregator.
type GridGetter interface {
	Get(ctx context.Context, variable string, hour int) (*models.Grid, error)
}

// MaxHourProber reports the last forecast hour of a variable.
type MaxHourProber interface {
	MaxHour(ctx context.Context, variable string) (ProbeResult, error)
}

// Request identifies one time series run.
type Request struct {
	// Viewer groups runs; a new run for the same viewer supersedes the old one.
	// Empty disables supersession.
	Viewer   string
	Variable string
	Units    string
	Lat      float64
	Lon      float64
	// Progress, when set, is called after each hour settles.
	Progress func(done, total int)
}

// Result is a completed series with its statistics.
type Result struct {
	Series  timeseries.Series  `json:"series"`
	Summary timeseries.Summary `json:"summary"`
	Range   ProbeResult        `json:"range"`
}

type viewerRun struct {
	gen    uint64
	cancel context.CancelFunc
}

// Aggregator builds per-location series across all forecast hours of a variable.
// Hours are fetched sequentially in ascending order.
type Aggregator struct {
	store         GridGetter
	probe         MaxHourProber
	sampler       *sampler.Sampler
	forecastStart time.Time
	hourStep      int
	logger        *zap.Logger

	mu   sync.Mutex
	gen  uint64
	runs map[string]viewerRun
}

// NewAggregator creates an Aggregator. Timestamps are forecastStart + hour.
func NewAggregator(store GridGetter, probe MaxHourProber, s *sampler.Sampler, forecastStart time.Time, hourStep int, logger *zap.Logger) *Aggregator {
	if hourStep <= 0 {
		hourStep = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:         store,
		probe:         probe,
		sampler:       s,
		forecastStart: forecastStart.UTC(),
		hourStep:      hourStep,
		logger:        logger,
		runs:          make(map[string]viewerRun),
	}
}

// Run collects the series for req. It returns ErrOutOfDomain before any fetch,
// ErrSuperseded when a newer run for the same viewer started, and
// timeseries.ErrEmptySeries when no hour produced a value.
func (a *Aggregator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if !a.sampler.InDomain(req.Lat, req.Lon) {
		observability.TimeseriesRunsTotal.WithLabelValues("out_of_domain").Inc()
		return nil, ErrOutOfDomain
	}
	logger := loggerFromContext(ctx, a.logger).With(
		zap.String("variable", req.Variable),
		zap.Float64("lat", req.Lat),
		zap.Float64("lon", req.Lon),
	)

	runCtx, gen := a.begin(ctx, req.Viewer)
	defer a.end(req.Viewer, gen)

	rng, err := a.probe.MaxHour(runCtx, req.Variable)
	if err != nil {
		return nil, a.interrupted(ctx, req.Viewer, gen, logger, err)
	}

	series := timeseries.Series{Variable: req.Variable, Units: req.Units, Lat: req.Lat, Lon: req.Lon}
	total := rng.MaxHour/a.hourStep + 1
	var ref *models.Grid
	var cell sampler.Cell

	for h := 0; h <= rng.MaxHour; h += a.hourStep {
		if runCtx.Err() != nil {
			break
		}
		series.Requested++
		point, ok, err := a.sampleHour(runCtx, req, h, &ref, &cell)
		switch {
		case errors.Is(err, ErrGridMismatch):
			series.Mismatched++
			logger.Warn("grid shape mismatch, hour skipped", zap.Int("hour", h))
		case !ok:
			series.Missing++
		default:
			series.Points = append(series.Points, point)
		}
		if req.Progress != nil {
			req.Progress(series.Requested, total)
		}
	}
	if err := runCtx.Err(); err != nil {
		return nil, a.interrupted(ctx, req.Viewer, gen, logger, err)
	}
	series.Row, series.Col = cell.Row, cell.Col

	summary, err := timeseries.Summarize(series.Points)
	if err != nil {
		observability.TimeseriesRunsTotal.WithLabelValues("empty").Inc()
		return nil, err
	}
	observability.TimeseriesRunsTotal.WithLabelValues("ok").Inc()
	observability.TimeseriesDurationSeconds.Observe(time.Since(start).Seconds())
	observability.TimeseriesPoints.Observe(float64(len(series.Points)))
	logger.Debug("time series complete",
		zap.Int("points", len(series.Points)),
		zap.Int("missing", series.Missing),
		zap.Int("mismatched", series.Mismatched))
	return &Result{Series: series, Summary: summary, Range: rng}, nil
}

// sampleHour fetches hour h and samples it at the series cell. The cell is
// fixed by the first grid that resolves one; later grids must match its shape.
func (a *Aggregator) sampleHour(ctx context.Context, req Request, h int, ref **models.Grid, cell *sampler.Cell) (timeseries.Point, bool, error) {
	g, err := a.store.Get(ctx, req.Variable, h)
	if err != nil {
		return timeseries.Point{}, false, err
	}
	if *ref == nil {
		c, ok := a.sampler.CellIndex(g, req.Lat, req.Lon)
		if !ok {
			return timeseries.Point{}, false, nil
		}
		*ref, *cell = g, c
	} else if !(*ref).SameShape(g) {
		return timeseries.Point{}, false, ErrGridMismatch
	}

	res := sampler.SampleCell(g, *cell)
	if res.Status != sampler.StatusOK {
		return timeseries.Point{}, false, nil
	}
	return timeseries.Point{
		Hour:  h,
		Time:  a.forecastStart.Add(time.Duration(h) * time.Hour),
		Value: res.Value,
	}, true, nil
}

// interrupted classifies an early stop: a newer run wins over the caller's own cancellation.
func (a *Aggregator) interrupted(ctx context.Context, viewer string, gen uint64, logger *zap.Logger, err error) error {
	if ctx.Err() == nil && a.superseded(viewer, gen) {
		observability.TimeseriesRunsTotal.WithLabelValues("superseded").Inc()
		logger.Info("time series run superseded", zap.String("viewer", viewer))
		return ErrSuperseded
	}
	observability.TimeseriesRunsTotal.WithLabelValues("canceled").Inc()
	return err
}

// begin registers a run for viewer, canceling that viewer's previous run.
func (a *Aggregator) begin(ctx context.Context, viewer string) (context.Context, uint64) {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if viewer == "" {
		// Untracked runs still need their cancel released by end.
		a.runs[untrackedKey(a.gen)] = viewerRun{gen: a.gen, cancel: cancel}
		return runCtx, a.gen
	}
	if prev, ok := a.runs[viewer]; ok {
		prev.cancel()
	}
	a.runs[viewer] = viewerRun{gen: a.gen, cancel: cancel}
	return runCtx, a.gen
}

func (a *Aggregator) end(viewer string, gen uint64) {
	key := viewer
	if key == "" {
		key = untrackedKey(gen)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.runs[key]; ok && r.gen == gen {
		r.cancel()
		delete(a.runs, key)
	}
}

func (a *Aggregator) superseded(viewer string, gen uint64) bool {
	if viewer == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[viewer]
	return !ok || r.gen != gen
}

// untrackedKey cannot collide with a viewer ID because those never start with NUL.
func untrackedKey(gen uint64) string {
	return fmt.Sprintf("\x00%d", gen)
}
