package models

import (
	"hash/fnv"
	"math"
)

// Placeholder builds a deterministic synthetic grid covering d so a caller has
// something to render when the real grid is unavailable. It must never be cached
// under the real key.
func Placeholder(key GridKey, d Domain, rows, cols int) *Grid {
	if rows < 2 {
		rows = 2
	}
	if cols < 2 {
		cols = 2
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Variable))
	seed := float64(h.Sum32()%1000) / 1000
	phase := seed*2*math.Pi + float64(key.Hour)*math.Pi/12
	base := 10 + 20*seed

	values := make([][]*float64, rows)
	for r := 0; r < rows; r++ {
		values[r] = make([]*float64, cols)
		y := float64(r) / float64(rows-1)
		for c := 0; c < cols; c++ {
			x := float64(c) / float64(cols-1)
			v := base + 5*math.Sin(2*math.Pi*x+phase)*math.Cos(2*math.Pi*y-phase/2)
			v = math.Round(v*100) / 100
			values[r][c] = &v
		}
	}
	return &Grid{
		LatMin: d.LatSW,
		LatMax: d.LatNE,
		LonMin: d.LonSW,
		LonMax: d.LonNE,
		Rows:   rows,
		Cols:   cols,
		Values: values,
	}
}
