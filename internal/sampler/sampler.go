package sampler

import (
	"fmt"
	"math"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// Status classifies a coordinate lookup.
type Status int

const (
	StatusOutOfDomain Status = iota
	StatusNoData
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusOutOfDomain:
		return "out_of_domain"
	case StatusNoData:
		return "no_data"
	case StatusOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Cell is a resolved grid index. Row grows northwards.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Result is the outcome of sampling one grid at one coordinate.
// Cell is set for NoData (when a grid was present) and OK results.
type Result struct {
	Status Status
	Value  float64
	Cell   Cell
	// HasCell is false for OutOfDomain and when no grid was loaded.
	HasCell bool
}

// Sampler maps coordinates to grid cells within a fixed domain.
type Sampler struct {
	domain models.Domain
}

// New returns a Sampler bound to domain.
func New(domain models.Domain) *Sampler {
	return &Sampler{domain: domain}
}

// Domain returns the bounds the sampler checks against.
func (s *Sampler) Domain() models.Domain {
	return s.domain
}

// InDomain reports whether (lat, lon) is inside the domain, inclusive.
func (s *Sampler) InDomain(lat, lon float64) bool {
	return s.domain.Contains(lat, lon)
}

// CellIndex resolves (lat, lon) to a cell of g. Indices are clamped into the grid
// to absorb floating-point error at the edges. Returns false when the point is
// outside the domain or g is nil.
func (s *Sampler) CellIndex(g *models.Grid, lat, lon float64) (Cell, bool) {
	if !s.InDomain(lat, lon) || g == nil {
		return Cell{}, false
	}
	latNorm := (lat - g.LatMin) / (g.LatMax - g.LatMin)
	lonNorm := (lon - g.LonMin) / (g.LonMax - g.LonMin)
	return Cell{
		Row: clampIndex(math.Floor(latNorm*float64(g.Rows-1)), g.Rows),
		Col: clampIndex(math.Floor(lonNorm*float64(g.Cols-1)), g.Cols),
	}, true
}

// Sample checks the domain first, then resolves the cell and reads its value.
// Null and NaN samples yield StatusNoData.
func (s *Sampler) Sample(g *models.Grid, lat, lon float64) Result {
	if !s.InDomain(lat, lon) {
		return Result{Status: StatusOutOfDomain}
	}
	cell, ok := s.CellIndex(g, lat, lon)
	if !ok {
		return Result{Status: StatusNoData}
	}
	return SampleCell(g, cell)
}

// SampleCell reads an already resolved cell from g.
func SampleCell(g *models.Grid, cell Cell) Result {
	v, ok := g.At(cell.Row, cell.Col)
	if !ok {
		return Result{Status: StatusNoData, Cell: cell, HasCell: true}
	}
	return Result{Status: StatusOK, Value: v, Cell: cell, HasCell: true}
}

// FormatCoords renders the cursor readout, e.g. "Lat: 30.000 , Lon: 79.000".
func FormatCoords(lat, lon float64) string {
	return fmt.Sprintf("Lat: %.3f , Lon: %.3f", lat, lon)
}

func clampIndex(f float64, n int) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > float64(n-1) {
		return n - 1
	}
	return int(f)
}
