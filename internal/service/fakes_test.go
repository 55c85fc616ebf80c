package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/wrf-grid-viewer/internal/client"
	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/testhelpers"
)

var testDomain = models.Domain{LatSW: 28, LonSW: 77, LatNE: 32, LonNE: 81}

// fakeSource serves documents from memory and counts fetches per key.
type fakeSource struct {
	mu      sync.Mutex
	docs    map[models.GridKey][]byte
	errs    map[models.GridKey]error
	fetches map[models.GridKey]int
	// gate, when set, blocks every FetchGrid until it is closed.
	gate chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs:    make(map[models.GridKey][]byte),
		errs:    make(map[models.GridKey]error),
		fetches: make(map[models.GridKey]int),
	}
}

func (f *fakeSource) addGrid(t *testing.T, variable string, hour int, g *models.Grid) {
	t.Helper()
	body, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal grid: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[models.GridKey{Variable: variable, Hour: hour}] = body
}

func (f *fakeSource) FetchGrid(ctx context.Context, key models.GridKey) ([]byte, error) {
	f.mu.Lock()
	f.fetches[key]++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	body, ok := f.docs[key]
	if !ok {
		return nil, client.ErrNotFound
	}
	return body, nil
}

func (f *fakeSource) Exists(ctx context.Context, key models.GridKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[key]
	return ok, nil
}

func (f *fakeSource) fetchCount(key models.GridKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[key]
}

// failingCache errors on every call.
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key models.GridKey) (*models.Grid, bool, error) {
	return nil, false, errors.New("memcache: connection refused")
}

func (failingCache) Set(ctx context.Context, key models.GridKey, g *models.Grid) error {
	return errors.New("memcache: connection refused")
}

func uniform(v float64) *models.Grid {
	return testhelpers.UniformGrid(testDomain, 4, 4, v)
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
