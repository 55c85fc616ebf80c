package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
)

// maxDocumentBytes caps a grid document read; 130x130 floats is well under this.
const maxDocumentBytes = 16 << 20

// HTTPSource reads grid documents from a static file server.
type HTTPSource struct {
	baseURL        *url.URL
	paths          *PathResolver
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *gobreaker.CircuitBreaker
}

// NewHTTPSource returns an HTTPSource with default retry settings.
func NewHTTPSource(baseURL string, paths *PathResolver, timeout time.Duration) (*HTTPSource, error) {
	return NewHTTPSourceWithRetry(baseURL, paths, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewHTTPSourceWithRetry returns an HTTPSource. GET requests are retried up to
// retryAttempts times with exponential backoff and jitter; HEAD probes are not retried.
func NewHTTPSourceWithRetry(baseURL string, paths *PathResolver, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("grid source base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme %q", u.Scheme)
	}
	if paths == nil {
		paths = DefaultPathResolver()
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &HTTPSource{
		baseURL:        u,
		paths:          paths,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every upstream call in cb. A 404 or a call the
// caller canceled is not a failure.
func (s *HTTPSource) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	s.breaker = cb
}

// FetchGrid tries each resolved path in order and returns the first document found.
// A 404 moves on to the next path; any other failure is returned immediately.
func (s *HTTPSource) FetchGrid(ctx context.Context, key models.GridKey) ([]byte, error) {
	for _, p := range s.paths.GridPaths(key) {
		body, err := s.getWithRetry(ctx, p)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("fetch %s: %w", p, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Exists issues HEAD requests through the same ordered paths. It returns true on
// the first 2xx. A non-404 failure is reported only when no path matched.
func (s *HTTPSource) Exists(ctx context.Context, key models.GridKey) (bool, error) {
	var lastErr error
	for _, p := range s.paths.GridPaths(key) {
		_, err := s.call(ctx, http.MethodHead, p)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	return false, lastErr
}

func (s *HTTPSource) getWithRetry(ctx context.Context, p string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.GridSourceRetriesTotal.Inc()
			delay := s.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := s.call(ctx, http.MethodGet, p)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

// call runs one request through the circuit breaker if one is set.
func (s *HTTPSource) call(ctx context.Context, method, p string) ([]byte, error) {
	if s.breaker == nil {
		return s.callUpstream(ctx, method, p)
	}
	var notFound bool
	var callerErr error
	out, err := s.breaker.Execute(func() (interface{}, error) {
		body, err := s.callUpstream(ctx, method, p)
		switch {
		case errors.Is(err, ErrNotFound):
			notFound = true
			return nil, nil
		case err != nil && ctx.Err() != nil:
			// The caller gave up; the upstream is not at fault.
			callerErr = err
			return nil, nil
		}
		return body, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	if callerErr != nil {
		return nil, callerErr
	}
	if notFound {
		return nil, ErrNotFound
	}
	body, _ := out.([]byte)
	return body, nil
}

func (s *HTTPSource) callUpstream(ctx context.Context, method, p string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, s.baseURL.JoinPath(p).String(), nil)
	if err != nil {
		observability.GridSourceCallsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.GridSourceCallsTotal.WithLabelValues(method, "error").Inc()
		observability.GridSourceDuration.WithLabelValues(method, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.GridSourceCallsTotal.WithLabelValues(method, status).Inc()
	observability.GridSourceDuration.WithLabelValues(method, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}
	if method == http.MethodHead {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (s *HTTPSource) calculateBackoff(attempt int) time.Duration {
	delay := float64(s.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(s.retryMaxDelay) {
		delay = float64(s.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}
