package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
	"github.com/kjstillabower/wrf-grid-viewer/internal/traffic"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	Tracker        *traffic.Tracker
	RequestTimeout time.Duration
}

// NewRouter mounts the API. /health and /metrics bypass the rate limiter; the
// time series route is limited but runs under its own longer deadline.
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/variables").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter, opts.Tracker))
	api.HandleFunc("/{variable}/timeseries", h.GetTimeseries).Methods(http.MethodGet)

	quick := api.NewRoute().Subrouter()
	if opts.RequestTimeout > 0 {
		quick.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	quick.HandleFunc("", h.ListVariables).Methods(http.MethodGet)
	quick.HandleFunc("/{variable}/hours", h.GetHours).Methods(http.MethodGet)
	quick.HandleFunc("/{variable}/frames/{hour}", h.GetFrame).Methods(http.MethodGet)
	quick.HandleFunc("/{variable}/frames/{hour}/sample", h.GetSample).Methods(http.MethodGet)
	return router
}
