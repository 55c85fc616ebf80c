package timeseries

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptySeries is returned when no forecast hour yielded a value.
var ErrEmptySeries = errors.New("no data available at this location")

// Trend labels the sign of the least-squares slope.
type Trend string

const (
	TrendIncreasing Trend = "Increasing"
	TrendDecreasing Trend = "Decreasing"
	TrendStable     Trend = "Stable"
)

// Point is one valid sample of a location's series.
type Point struct {
	Hour  int       `json:"forecastHour"`
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"value"`
}

// Series is the ordered-by-hour set of valid samples at one location.
// Hours without data are omitted, not null-filled.
type Series struct {
	Variable string  `json:"variable"`
	Units    string  `json:"units,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Points   []Point `json:"points"`
	// Requested is the number of hours iterated; Missing counts hours with no
	// usable grid or value; Mismatched counts grids whose shape differed.
	Requested  int `json:"requested"`
	Missing    int `json:"missing"`
	Mismatched int `json:"mismatched"`
}

// Summary holds statistics over a series' values. It is derived on demand.
type Summary struct {
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stdDev"`
	Range      float64 `json:"range"`
	TrendSlope float64 `json:"trendSlope"`
	Trend      Trend   `json:"trend"`
}

// Values returns the point values in order.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Summarize computes min, max, mean, population standard deviation, range and an
// ordinary least squares trend over index 0..n-1. Returns ErrEmptySeries for no points.
func Summarize(points []Point) (Summary, error) {
	if len(points) == 0 {
		return Summary{}, ErrEmptySeries
	}
	vals := Values(points)
	sum := Summary{
		Count: len(vals),
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
		Mean:  stat.Mean(vals, nil),
	}
	sum.Range = sum.Max - sum.Min
	if len(vals) > 1 {
		_, sum.StdDev = stat.PopMeanStdDev(vals, nil)
		xs := make([]float64, len(vals))
		for i := range xs {
			xs[i] = float64(i)
		}
		_, sum.TrendSlope = stat.LinearRegression(xs, vals, nil, false)
	}
	sum.Trend = trendOf(sum.TrendSlope)
	return sum, nil
}

func trendOf(slope float64) Trend {
	switch {
	case slope > 0:
		return TrendIncreasing
	case slope < 0:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
