package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

func testGrid() *models.Grid {
	return models.Placeholder(models.GridKey{Variable: "t2", Hour: 0}, models.DefaultDomain, 4, 4)
}

// TestInMemoryCache_GetReturnsIdenticalPointer verifies that a hit returns the
// exact object stored, not a copy.
func TestInMemoryCache_GetReturnsIdenticalPointer(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	key := models.GridKey{Variable: "t2", Hour: 6}
	g := testGrid()

	if err := c.Set(ctx, key, g); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		got, ok, err := c.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Get() = _, %v, %v; want hit", ok, err)
		}
		if got != g {
			t.Errorf("Get() returned %p, want identical %p", got, g)
		}
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()
	c.Set(context.Background(), models.GridKey{Variable: "t2", Hour: 1}, testGrid())

	for _, key := range []models.GridKey{{Variable: "t2", Hour: 2}, {Variable: "rh2", Hour: 1}} {
		got, ok, err := c.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if ok || got != nil {
			t.Errorf("Get(%s) = %v, %v; want miss", key, got, ok)
		}
	}
}

func TestInMemoryCache_Len(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	c.Set(ctx, models.GridKey{Variable: "t2", Hour: 0}, testGrid())
	c.Set(ctx, models.GridKey{Variable: "t2", Hour: 1}, testGrid())
	c.Set(ctx, models.GridKey{Variable: "t2", Hour: 1}, testGrid())
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	g := testGrid()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(h int) {
			defer wg.Done()
			key := models.GridKey{Variable: "t2", Hour: h % 4}
			c.Set(ctx, key, g)
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}
