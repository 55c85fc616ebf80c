package cache

import (
	"context"
	"sync"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// Cache stores parsed grids by (variable, hour). Entries are never evicted by
// the store itself; forecast hours are bounded and grids are small.
type Cache interface {
	Get(ctx context.Context, key models.GridKey) (*models.Grid, bool, error)
	Set(ctx context.Context, key models.GridKey, grid *models.Grid) error
}

// InMemoryCache is an unbounded map from GridKey to *Grid. Get returns the
// same pointer that was stored, so repeated lookups yield the identical grid.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[models.GridKey]*models.Grid
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[models.GridKey]*models.Grid),
	}
}

// Get returns (grid, true, nil) on a hit and (nil, false, nil) on a miss.
func (c *InMemoryCache) Get(ctx context.Context, key models.GridKey) (*models.Grid, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.data[key]
	return g, ok, nil
}

// Set stores grid under key, replacing any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key models.GridKey, grid *models.Grid) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = grid
	return nil
}

// Len returns the number of cached grids.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
