package models

// Domain is the fixed scientific bounding box. Points outside it are never sampled,
// even if a grid's own bounds would cover them.
type Domain struct {
	LatSW float64 `json:"latSW" yaml:"lat_sw"`
	LonSW float64 `json:"lonSW" yaml:"lon_sw"`
	LatNE float64 `json:"latNE" yaml:"lat_ne"`
	LonNE float64 `json:"lonNE" yaml:"lon_ne"`
}

// DefaultDomain is the WRF box the dashboard was built around.
var DefaultDomain = Domain{
	LatSW: 28.428466796875,
	LonSW: 77.15260314941406,
	LatNE: 31.476028442382812,
	LonNE: 81.24139404296875,
}

// Contains reports whether (lat, lon) lies in the box, inclusive on all edges.
func (d Domain) Contains(lat, lon float64) bool {
	return lat >= d.LatSW && lat <= d.LatNE && lon >= d.LonSW && lon <= d.LonNE
}

// Valid reports whether the box is non-empty on both axes.
func (d Domain) Valid() bool {
	return d.LatSW < d.LatNE && d.LonSW < d.LonNE
}
