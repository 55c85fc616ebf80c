package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

type mockGridFetcher struct {
	mu     sync.Mutex
	calls  map[models.GridKey]int
	failAt map[int]bool
}

func (m *mockGridFetcher) Get(ctx context.Context, variable string, hour int) (*models.Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[models.GridKey]int)
	}
	m.calls[models.GridKey{Variable: variable, Hour: hour}]++
	if m.failAt[hour] {
		return nil, errors.New("upstream down")
	}
	return testGrid(), nil
}

func (m *mockGridFetcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func fixedMax(n int) MaxHourFunc {
	return func(ctx context.Context, variable string) int { return n }
}

// TestCacheWarmer_Warm_AllHours verifies that every hour of every variable is
// requested exactly once, stepping by the configured hour step.
func TestCacheWarmer_Warm_AllHours(t *testing.T) {
	fetcher := &mockGridFetcher{}
	warmer := NewCacheWarmer(fetcher, fixedMax(6), 3, 2, nil)

	if err := warmer.Warm(context.Background(), []string{"t2", "rh2"}); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if len(fetcher.calls) != 6 {
		t.Errorf("distinct keys fetched = %d, want 6", len(fetcher.calls))
	}
	for _, v := range []string{"t2", "rh2"} {
		for _, h := range []int{0, 3, 6} {
			if n := fetcher.calls[models.GridKey{Variable: v, Hour: h}]; n != 1 {
				t.Errorf("%s hour %d fetched %d times, want 1", v, h, n)
			}
		}
	}
}

func TestCacheWarmer_Warm_EmptyVariables(t *testing.T) {
	warmer := NewCacheWarmer(&mockGridFetcher{}, fixedMax(10), 1, 1, nil)
	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
}

// TestCacheWarmer_Warm_PartialFailure verifies that failing hours are counted
// and reported without stopping the remaining hours.
func TestCacheWarmer_Warm_PartialFailure(t *testing.T) {
	fetcher := &mockGridFetcher{failAt: map[int]bool{1: true, 2: true}}
	warmer := NewCacheWarmer(fetcher, fixedMax(4), 1, 3, nil)

	err := warmer.Warm(context.Background(), []string{"t2"})
	if err == nil {
		t.Fatal("Warm() error = nil, want failure summary")
	}
	if !strings.Contains(err.Error(), "2 of 5") {
		t.Errorf("Warm() error = %q, want count of failures", err)
	}
	if len(fetcher.calls) != 5 {
		t.Errorf("fetched %d hours, want all 5", len(fetcher.calls))
	}
}

func TestCacheWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	warmer := NewCacheWarmer(&mockGridFetcher{}, fixedMax(0), 1, 1, nil)
	if err := warmer.WarmPeriodic(ctx, []string{"t2"}, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
	}
}

// TestCacheWarmer_WarmPeriodic_WaitsOneInterval verifies that the periodic loop
// does not repeat the up-front Warm and refreshes on each tick.
func TestCacheWarmer_WarmPeriodic_WaitsOneInterval(t *testing.T) {
	fetcher := &mockGridFetcher{}
	warmer := NewCacheWarmer(fetcher, fixedMax(0), 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"t2"}, 200*time.Millisecond) }()

	time.Sleep(50 * time.Millisecond)
	if n := fetcher.count(); n != 0 {
		t.Errorf("fetches before the first tick = %d, want 0", n)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fetcher.count() == 0 {
		t.Error("no refresh after the first tick")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
	}
}
