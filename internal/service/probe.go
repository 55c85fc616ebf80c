package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
)

// Probe result sources.
const (
	SourceConfigured = "configured"
	SourceProbed     = "probed"
	SourceDefault    = "default"
)

// DefaultCheckpoints are the sparse hours tested before the binary search.
var DefaultCheckpoints = []int{0, 24, 48, 72, 96, 120, 168, 240, 336, 500}

// ExistenceChecker answers whether a grid document exists without fetching it.
type ExistenceChecker interface {
	Exists(ctx context.Context, key models.GridKey) (bool, error)
}

// ProbeConfig configures an HourRangeProbe.
type ProbeConfig struct {
	// Known maps variables to a trusted max hour; those variables are never probed.
	Known          map[string]int
	DefaultMaxHour int
	Ceiling        int
	Checkpoints    []int
	// ScanAll keeps testing checkpoints after the first miss.
	ScanAll bool
	// TTL memoises results per variable; zero disables memoisation.
	TTL time.Duration
}

// ProbeResult is the detected last forecast hour and where it came from.
type ProbeResult struct {
	MaxHour int    `json:"maxHour"`
	Source  string `json:"source"`
	Probes  int    `json:"probes"`
}

type probeEntry struct {
	result  ProbeResult
	expires time.Time
}

// HourRangeProbe finds the last forecast hour with data for a variable using
// checkpoint probing followed by a binary search.
type HourRangeProbe struct {
	checker ExistenceChecker
	cfg     ProbeConfig
	logger  *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]probeEntry
	now   func() time.Time
}

// NewHourRangeProbe creates a probe. Zero config values take defaults
// (default max hour 239, ceiling 500, DefaultCheckpoints).
func NewHourRangeProbe(checker ExistenceChecker, cfg ProbeConfig, logger *zap.Logger) *HourRangeProbe {
	if cfg.DefaultMaxHour <= 0 {
		cfg.DefaultMaxHour = 239
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 500
	}
	if len(cfg.Checkpoints) == 0 {
		cfg.Checkpoints = DefaultCheckpoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HourRangeProbe{
		checker: checker,
		cfg:     cfg,
		logger:  logger,
		memo:    make(map[string]probeEntry),
		now:     time.Now,
	}
}

// MaxHour returns the last forecast hour for variable. Existence failures
// count as "does not exist", so the result is always an hour; an error is
// returned only when ctx ends during probing.
func (p *HourRangeProbe) MaxHour(ctx context.Context, variable string) (ProbeResult, error) {
	if h, ok := p.cfg.Known[variable]; ok && h >= 0 {
		return p.publish(variable, ProbeResult{MaxHour: h, Source: SourceConfigured}), nil
	}
	if r, ok := p.cached(variable); ok {
		return r, nil
	}

	flight := func() (interface{}, error) {
		r := p.probe(ctx, variable)
		if err := ctx.Err(); err != nil {
			return ProbeResult{}, err
		}
		p.store(variable, r)
		return r, nil
	}
	v, err, _ := p.group.Do(variable, flight)
	// A shared probe fails only through its starter's context; a live caller
	// probes again.
	for err != nil && ctx.Err() == nil {
		v, err, _ = p.group.Do(variable, flight)
	}
	if err != nil {
		return ProbeResult{MaxHour: p.cfg.DefaultMaxHour, Source: SourceDefault}, err
	}
	return p.publish(variable, v.(ProbeResult)), nil
}

// Forget drops the memoised result for variable.
func (p *HourRangeProbe) Forget(variable string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.memo, variable)
}

func (p *HourRangeProbe) probe(ctx context.Context, variable string) ProbeResult {
	probes := 0
	exists := func(h int) bool {
		probes++
		ok, err := p.checker.Exists(ctx, models.GridKey{Variable: variable, Hour: h})
		switch {
		case err != nil:
			observability.ProbeRequestsTotal.WithLabelValues("error").Inc()
			p.logger.Debug("existence probe failed", zap.String("variable", variable), zap.Int("hour", h), zap.Error(err))
			return false
		case ok:
			observability.ProbeRequestsTotal.WithLabelValues("exists").Inc()
		default:
			observability.ProbeRequestsTotal.WithLabelValues("missing").Inc()
		}
		return ok
	}

	last, firstMissAfter := -1, -1
	for _, cp := range p.cfg.Checkpoints {
		if cp > p.cfg.Ceiling || ctx.Err() != nil {
			break
		}
		if exists(cp) {
			last = cp
			firstMissAfter = -1
			continue
		}
		if firstMissAfter < 0 {
			firstMissAfter = cp
		}
		if !p.cfg.ScanAll {
			break
		}
	}
	if last < 0 {
		return ProbeResult{MaxHour: p.cfg.DefaultMaxHour, Source: SourceDefault, Probes: probes}
	}

	lo, hi := last, min(2*last, p.cfg.Ceiling)
	if firstMissAfter > last {
		hi = min(hi, firstMissAfter-1)
	}
	for lo < hi && ctx.Err() == nil {
		mid := (lo + hi + 1) / 2
		if exists(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return ProbeResult{MaxHour: lo, Source: SourceProbed, Probes: probes}
}

func (p *HourRangeProbe) cached(variable string) (ProbeResult, bool) {
	if p.cfg.TTL <= 0 {
		return ProbeResult{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.memo[variable]
	if !ok || p.now().After(e.expires) {
		return ProbeResult{}, false
	}
	return e.result, true
}

func (p *HourRangeProbe) store(variable string, r ProbeResult) {
	if p.cfg.TTL <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memo[variable] = probeEntry{result: r, expires: p.now().Add(p.cfg.TTL)}
}

func (p *HourRangeProbe) publish(variable string, r ProbeResult) ProbeResult {
	observability.ProbeMaxHour.WithLabelValues(variable, r.Source).Set(float64(r.MaxHour))
	return r
}
