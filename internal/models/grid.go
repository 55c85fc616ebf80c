package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedGrid is returned when a grid document fails structural validation.
var ErrMalformedGrid = errors.New("malformed grid")

// Grid is one variable's samples at one forecast hour on a regular lat/lon lattice.
// Row 0 lies on LatMin and row Rows-1 on LatMax; columns run LonMin to LonMax.
// A Grid is immutable once parsed; callers share it by pointer.
type Grid struct {
	LatMin float64      `json:"lat_min"`
	LatMax float64      `json:"lat_max"`
	LonMin float64      `json:"lon_min"`
	LonMax float64      `json:"lon_max"`
	Cols   int          `json:"nx"`
	Rows   int          `json:"ny"`
	Values [][]*float64 `json:"values"`
}

// gridDocument mirrors Grid with optional fields so missing keys can be told apart from zero.
type gridDocument struct {
	LatMin *float64     `json:"lat_min"`
	LatMax *float64     `json:"lat_max"`
	LonMin *float64     `json:"lon_min"`
	LonMax *float64     `json:"lon_max"`
	Cols   *int         `json:"nx"`
	Rows   *int         `json:"ny"`
	Values [][]*float64 `json:"values"`
}

// ParseGrid decodes and validates a grid document. Any structural problem is
// reported as ErrMalformedGrid.
func ParseGrid(data []byte) (*Grid, error) {
	var doc gridDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrMalformedGrid, err)
	}
	if doc.LatMin == nil || doc.LatMax == nil || doc.LonMin == nil || doc.LonMax == nil {
		return nil, fmt.Errorf("%w: missing bounds", ErrMalformedGrid)
	}
	if doc.Cols == nil || doc.Rows == nil {
		return nil, fmt.Errorf("%w: missing nx/ny", ErrMalformedGrid)
	}
	g := &Grid{
		LatMin: *doc.LatMin,
		LatMax: *doc.LatMax,
		LonMin: *doc.LonMin,
		LonMax: *doc.LonMax,
		Cols:   *doc.Cols,
		Rows:   *doc.Rows,
		Values: doc.Values,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks bounds, dimensions and that Values is a Rows x Cols matrix.
func (g *Grid) Validate() error {
	for _, b := range []float64{g.LatMin, g.LatMax, g.LonMin, g.LonMax} {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("%w: non-finite bound", ErrMalformedGrid)
		}
	}
	if g.LatMin >= g.LatMax || g.LonMin >= g.LonMax {
		return fmt.Errorf("%w: inverted bounds", ErrMalformedGrid)
	}
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: non-positive dimensions %dx%d", ErrMalformedGrid, g.Rows, g.Cols)
	}
	if len(g.Values) != g.Rows {
		return fmt.Errorf("%w: %d rows, want %d", ErrMalformedGrid, len(g.Values), g.Rows)
	}
	for i, row := range g.Values {
		if len(row) != g.Cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrMalformedGrid, i, len(row), g.Cols)
		}
	}
	return nil
}

// At returns the sample at (row, col). ok is false for null, NaN or out-of-range cells.
func (g *Grid) At(row, col int) (v float64, ok bool) {
	if g == nil || row < 0 || row >= len(g.Values) || col < 0 || col >= len(g.Values[row]) {
		return 0, false
	}
	p := g.Values[row][col]
	if p == nil || math.IsNaN(*p) {
		return 0, false
	}
	return *p, true
}

// SameShape reports whether other has identical bounds and dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	if g == nil || other == nil {
		return false
	}
	return g.Rows == other.Rows && g.Cols == other.Cols &&
		g.LatMin == other.LatMin && g.LatMax == other.LatMax &&
		g.LonMin == other.LonMin && g.LonMax == other.LonMax
}
