// Package testhelpers provides fixtures shared by package tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// GridServer is a static file server for grid documents that counts requests.
// Paths are relative to the server root, e.g. "t2/json/fh_000.json".
type GridServer struct {
	*httptest.Server

	mu     sync.Mutex
	docs   map[string][]byte
	status map[string]int
	gets   map[string]int
	heads  map[string]int
}

// NewGridServer starts a GridServer closed automatically at test cleanup.
func NewGridServer(t testing.TB) *GridServer {
	t.Helper()
	s := &GridServer{
		docs:   make(map[string][]byte),
		status: make(map[string]int),
		gets:   make(map[string]int),
		heads:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *GridServer) serve(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	s.mu.Lock()
	switch r.Method {
	case http.MethodGet:
		s.gets[p]++
	case http.MethodHead:
		s.heads[p]++
	}
	status, forced := s.status[p]
	body, ok := s.docs[p]
	s.mu.Unlock()

	if forced {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

// AddGrid serves g as JSON at p.
func (s *GridServer) AddGrid(t testing.TB, p string, g *models.Grid) {
	t.Helper()
	body, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal grid: %v", err)
	}
	s.AddRaw(p, body)
}

// AddRaw serves body verbatim at p.
func (s *GridServer) AddRaw(p string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[p] = body
}

// FailWith makes p answer with status and no body.
func (s *GridServer) FailWith(p string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[p] = status
}

// Gets returns the GET count for p.
func (s *GridServer) Gets(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[p]
}

// Heads returns the HEAD count for p.
func (s *GridServer) Heads(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heads[p]
}

// TotalGets returns the GET count across all paths.
func (s *GridServer) TotalGets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.gets {
		n += c
	}
	return n
}

// UniformGrid returns a rows x cols grid over d with every cell set to v.
func UniformGrid(d models.Domain, rows, cols int, v float64) *models.Grid {
	values := make([][]*float64, rows)
	for r := range values {
		values[r] = make([]*float64, cols)
		for c := range values[r] {
			x := v
			values[r][c] = &x
		}
	}
	return &models.Grid{
		LatMin: d.LatSW, LatMax: d.LatNE,
		LonMin: d.LonSW, LonMax: d.LonNE,
		Rows: rows, Cols: cols, Values: values,
	}
}
