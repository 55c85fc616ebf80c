package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/wrf-grid-viewer/internal/app"
	"github.com/kjstillabower/wrf-grid-viewer/internal/lifecycle"
	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
	"github.com/kjstillabower/wrf-grid-viewer/internal/sampler"
	"github.com/kjstillabower/wrf-grid-viewer/internal/service"
	"github.com/kjstillabower/wrf-grid-viewer/internal/timeseries"
	"github.com/kjstillabower/wrf-grid-viewer/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler serves the grid viewer API from an App.
type Handler struct {
	app               *app.App
	healthConfig      *HealthConfig
	timeseriesTimeout time.Duration
	logger            *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. timeseriesTimeout bounds one time series run.
func NewHandler(a *app.App, healthConfig *HealthConfig, timeseriesTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeseriesTimeout <= 0 {
		timeseriesTimeout = 2 * time.Minute
	}
	return &Handler{
		app:               a,
		healthConfig:      healthConfig,
		timeseriesTimeout: timeseriesTimeout,
		logger:            logger,
	}
}

type variablesResponse struct {
	Variables     []models.Variable `json:"variables"`
	ForecastStart time.Time         `json:"forecastStart"`
	HourStep      int               `json:"hourStep"`
	Domain        models.Domain     `json:"domain"`
}

// ListVariables handles GET /variables.
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, variablesResponse{
		Variables:     h.app.Catalog.All(),
		ForecastStart: h.app.Config.ForecastStart,
		HourStep:      h.app.Config.HourStep,
		Domain:        h.app.Sampler.Domain(),
	})
}

type hoursResponse struct {
	Variable string `json:"variable"`
	service.ProbeResult
	Step int `json:"step"`
}

// GetHours handles GET /variables/{variable}/hours.
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variable(w, r)
	if !ok {
		return
	}
	rng, err := h.app.Probe.MaxHour(r.Context(), v.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hoursResponse{Variable: v.Name, ProbeResult: rng, Step: h.app.Config.HourStep})
}

// GetFrame handles GET /variables/{variable}/frames/{hour}.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variable(w, r)
	if !ok {
		return
	}
	hour, err := validation.ParseHour(mux.Vars(r)["hour"])
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	frame, err := h.app.Frames.Frame(r.Context(), v.Name, hour)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

type sampleResponse struct {
	Variable    string        `json:"variable"`
	Hour        int           `json:"hour"`
	Label       string        `json:"frameLabel"`
	Lat         float64       `json:"lat"`
	Lon         float64       `json:"lon"`
	Coords      string        `json:"coords"`
	Status      string        `json:"status"`
	Value       *float64      `json:"value"`
	Display     string        `json:"display"`
	Units       string        `json:"units"`
	Placeholder bool          `json:"placeholder"`
	Cell        *sampler.Cell `json:"cell,omitempty"`
}

// GetSample handles GET /variables/{variable}/frames/{hour}/sample?lat=&lon=.
// Missing grids are replaced by the placeholder field and flagged.
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variable(w, r)
	if !ok {
		return
	}
	hour, err := validation.ParseHour(mux.Vars(r)["hour"])
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	q := r.URL.Query()
	lat, lon, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	resp := sampleResponse{
		Variable: v.Name,
		Hour:     hour,
		Label:    service.FrameLabel(hour),
		Lat:      lat,
		Lon:      lon,
		Coords:   sampler.FormatCoords(lat, lon),
		Units:    v.Units,
	}

	res := sampler.Result{Status: sampler.StatusOutOfDomain}
	if h.app.Sampler.InDomain(lat, lon) {
		g, placeholder, err := h.app.Store.GetOrPlaceholder(r.Context(), v.Name, hour)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.Placeholder = placeholder
		res = h.app.Sampler.Sample(g, lat, lon)
	}
	observability.SampleResultsTotal.WithLabelValues(res.Status.String()).Inc()

	resp.Status = res.Status.String()
	resp.Display = displayValue(v, res)
	if res.HasCell {
		cell := res.Cell
		resp.Cell = &cell
	}
	if res.Status == sampler.StatusOK {
		value := res.Value
		resp.Value = &value
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTimeseries handles GET /variables/{variable}/timeseries?lat=&lon=&format=json|csv.
// X-Viewer-ID groups runs so a newer request cancels the viewer's older one.
func (h *Handler) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variable(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lat, lon, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	viewer := strings.TrimSpace(r.Header.Get("X-Viewer-ID"))
	if err := validation.ValidateViewerID(viewer); err != nil {
		writeValidationError(w, r, err)
		return
	}
	format := strings.ToLower(q.Get("format"))
	if format != "" && format != "json" && format != "csv" {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or csv")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeseriesTimeout)
	defer cancel()
	result, err := h.app.Aggregator.Run(ctx, service.Request{
		Viewer:   viewer,
		Variable: v.Name,
		Units:    v.Units,
		Lat:      lat,
		Lon:      lon,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if format == "csv" {
		var buf bytes.Buffer
		if err := timeseries.WriteCSV(&buf, result.Series, result.Summary, v.Precision); err != nil {
			writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to encode CSV")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvFilename(v.Name, lat, lon)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// variable validates and resolves the {variable} path segment, writing the error response on failure.
func (h *Handler) variable(w http.ResponseWriter, r *http.Request) (models.Variable, bool) {
	name := mux.Vars(r)["variable"]
	if err := validation.ValidateVariable(name); err != nil {
		writeValidationError(w, r, err)
		return models.Variable{}, false
	}
	v, err := h.app.Catalog.Lookup(name)
	if err != nil {
		writeServiceError(w, r, err)
		return models.Variable{}, false
	}
	return v, true
}

func displayValue(v models.Variable, res sampler.Result) string {
	switch res.Status {
	case sampler.StatusOK:
		return strings.TrimSpace(v.Format(res.Value) + " " + v.Units)
	case sampler.StatusNoData:
		return "No data"
	default:
		return "Outside forecast domain"
	}
}

func csvFilename(variable string, lat, lon float64) string {
	return fmt.Sprintf("%s_%.3f_%.3f.csv", variable, lat, lon)
}

// healthResult holds the computed health status and the reason for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"gridSource": "healthy"}
	if result.status == "degraded" {
		checks["gridSource"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "wrf-grid-viewer",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, starting, degraded, healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "startup"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if h.app.Tracker.Degraded(h.healthConfig.DegradedWindow, float64(h.healthConfig.DegradedErrorPct), h.healthConfig.DegradedMinSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		return v
	}
	return ""
}

func errorEnvelope(code, message, requestID string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": requestID,
		},
	}
}

// writeError writes the standard error envelope with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorEnvelope(code, message, correlationID(r)))
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	code := "INVALID_REQUEST"
	switch {
	case errors.Is(err, validation.ErrInvalidCoordinates):
		code = "INVALID_COORDINATES"
	case errors.Is(err, validation.ErrInvalidHour):
		code = "INVALID_HOUR"
	case errors.Is(err, validation.ErrInvalidVariable):
		code = "INVALID_VARIABLE"
	case errors.Is(err, validation.ErrInvalidViewer):
		code = "INVALID_VIEWER"
	}
	writeError(w, r, http.StatusBadRequest, code, err.Error())
}

// writeServiceError maps core errors to status codes. Unexpected errors are
// logged at DEBUG with the request logger.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownVariable):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_VARIABLE", err.Error())
	case errors.Is(err, service.ErrOutOfDomain):
		writeError(w, r, http.StatusBadRequest, "OUT_OF_DOMAIN", "location is outside the forecast domain")
	case errors.Is(err, timeseries.ErrEmptySeries):
		writeError(w, r, http.StatusNotFound, "NO_DATA", "no forecast hour has data at this location")
	case errors.Is(err, service.ErrSuperseded):
		writeError(w, r, http.StatusConflict, "SUPERSEDED", "a newer time series request replaced this one")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to load forecast data")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Debug("request failed", zap.Error(err))
		}
	}
}
