package client

import (
	"context"
	"errors"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// GridSource fetches raw grid documents and answers existence checks for a key.
type GridSource interface {
	FetchGrid(ctx context.Context, key models.GridKey) ([]byte, error)
	Exists(ctx context.Context, key models.GridKey) (bool, error)
}

var (
	ErrNotFound        = errors.New("grid not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit breaker open")
)
