package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

const keyPrefix = "grid:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache stores grid documents as JSON in memcached. Unlike
// InMemoryCache, every Get decodes a fresh *Grid.
type MemcachedCache struct {
	client     *memcache.Client
	expiration int32
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero. expiration zero stores items without expiry.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, expiration time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	exp := int64(expiration / time.Second)
	if exp < 0 || exp > maxRelativeExp {
		return nil, fmt.Errorf("memcached expiration %s out of range (0 to 30 days)", expiration)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, expiration: int32(exp)}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// itemKey renders key as grid:<variable>:<hour>.
func itemKey(key models.GridKey) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, key.Variable, key.Hour)
}

// Get decodes and revalidates the stored document. A document that no longer
// validates is reported as an error, not a hit.
func (c *MemcachedCache) Get(ctx context.Context, key models.GridKey) (*models.Grid, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(itemKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	g, err := models.ParseGrid(item.Value)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return g, true, nil
}

// Set encodes grid as a grid document and stores it.
func (c *MemcachedCache) Set(ctx context.Context, key models.GridKey, grid *models.Grid) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if grid == nil {
		return fmt.Errorf("set %s: nil grid", key)
	}
	raw, err := json.Marshal(grid)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        itemKey(key),
		Value:      raw,
		Expiration: c.expiration,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
