package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

func TestItemKey(t *testing.T) {
	if got := itemKey(models.GridKey{Variable: "rain", Hour: 48}); got != "grid:rain:48" {
		t.Errorf("itemKey() = %q, want %q", got, "grid:rain:48")
	}
}

func TestParseAddrs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:11211", []string{"localhost:11211"}},
		{" a:1 , ,b:2 ", []string{"a:1", "b:2"}},
	}
	for _, tt := range tests {
		if got := parseAddrs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseAddrs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewMemcachedCache_Expiration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", time.Second, 2, time.Hour)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if c.expiration != 3600 {
		t.Errorf("expiration = %d, want 3600", c.expiration)
	}
	if _, err := NewMemcachedCache("", 0, 0, 31*24*time.Hour); err == nil {
		t.Error("NewMemcachedCache(31 days) error = nil, want range error")
	}
	if _, err := NewMemcachedCache("", 0, 0, -time.Second); err == nil {
		t.Error("NewMemcachedCache(negative) error = nil, want range error")
	}
}

// TestMemcachedCache_CanceledContext verifies that a canceled context fails
// before any network call is attempted.
func TestMemcachedCache_CanceledContext(t *testing.T) {
	c, err := NewMemcachedCache("127.0.0.1:1", 10*time.Millisecond, 0, 0)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key := models.GridKey{Variable: "t2", Hour: 0}
	if _, _, err := c.Get(ctx, key); err != context.Canceled {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := c.Set(ctx, key, testGrid()); err != context.Canceled {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
}

func TestMemcachedCache_SetNilGrid(t *testing.T) {
	c, _ := NewMemcachedCache("127.0.0.1:1", 10*time.Millisecond, 0, 0)
	if err := c.Set(context.Background(), models.GridKey{Variable: "t2"}, nil); err == nil {
		t.Error("Set(nil) error = nil, want error")
	}
}
