package timeseries

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

var start = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func pointsFrom(hours []int, values []float64) []Point {
	out := make([]Point, len(hours))
	for i, h := range hours {
		out[i] = Point{Hour: h, Time: start.Add(time.Duration(h) * time.Hour), Value: values[i]}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestSummarize_SkipsMissingHour covers values [10, 12, 11, 15, 9] with the
// third hour missing.
func TestSummarize_SkipsMissingHour(t *testing.T) {
	points := pointsFrom([]int{0, 1, 3, 4}, []float64{10, 12, 15, 9})
	sum, err := Summarize(points)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.Count != 4 {
		t.Errorf("Count = %d, want 4", sum.Count)
	}
	if sum.Min != 9 || sum.Max != 15 {
		t.Errorf("Min/Max = %v/%v, want 9/15", sum.Min, sum.Max)
	}
	if !almostEqual(sum.Mean, 11.5) {
		t.Errorf("Mean = %v, want 11.5", sum.Mean)
	}
	if sum.Range != 6 {
		t.Errorf("Range = %v, want 6", sum.Range)
	}
	// deviations: -1.5, 0.5, 3.5, -2.5 -> squares sum 21 -> /4 = 5.25
	if !almostEqual(sum.StdDev, math.Sqrt(5.25)) {
		t.Errorf("StdDev = %v, want %v", sum.StdDev, math.Sqrt(5.25))
	}
	// x = 0..3, mean 1.5; sxy = (-1.5)(-1.5)+(-0.5)(0.5)+(0.5)(3.5)+(1.5)(-2.5) = 0
	if !almostEqual(sum.TrendSlope, 0) {
		t.Errorf("TrendSlope = %v, want 0", sum.TrendSlope)
	}
}

func TestSummarize_Trend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Trend
		slope  float64
	}{
		{"increasing", []float64{1, 2, 3, 4}, TrendIncreasing, 1},
		{"decreasing", []float64{8, 6, 4, 2}, TrendDecreasing, -2},
		{"flat", []float64{5, 5, 5}, TrendStable, 0},
		{"single point", []float64{7}, TrendStable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours := make([]int, len(tt.values))
			for i := range hours {
				hours[i] = i
			}
			sum, err := Summarize(pointsFrom(hours, tt.values))
			if err != nil {
				t.Fatalf("Summarize() error = %v", err)
			}
			if sum.Trend != tt.want {
				t.Errorf("Trend = %q, want %q", sum.Trend, tt.want)
			}
			if !almostEqual(sum.TrendSlope, tt.slope) {
				t.Errorf("TrendSlope = %v, want %v", sum.TrendSlope, tt.slope)
			}
		})
	}
}

func TestSummarize_SinglePointStdDevZero(t *testing.T) {
	sum, err := Summarize(pointsFrom([]int{3}, []float64{4.2}))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.StdDev != 0 || sum.Range != 0 || sum.Mean != 4.2 {
		t.Errorf("Summarize(single) = %+v", sum)
	}
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(nil)
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("Summarize(nil) error = %v, want ErrEmptySeries", err)
	}
}

// TestCSV_RoundTrip verifies that parsing the data section of an export
// reproduces the exported (hour, value) pairs at the configured precision.
func TestCSV_RoundTrip(t *testing.T) {
	points := pointsFrom([]int{0, 1, 3, 4, 120}, []float64{10, 12.5, 15.25, -9.75, 0.01})
	series := Series{Variable: "t2", Units: "°C", Lat: 30.1234, Lon: 78.5, Points: points, Requested: 6, Missing: 1}
	sum, err := Summarize(points)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, series, sum, 2); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"# Location,30.1234,78.5000", "# Variable,t2", "# Units,°C", "# Points,5", "forecast_hour,timestamp,value", "# Statistics", "# Mean,"} {
		if !strings.Contains(out, want) {
			t.Errorf("WriteCSV() output missing %q:\n%s", want, out)
		}
	}

	got, err := ParseCSV(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(got) != len(points) {
		t.Fatalf("ParseCSV() returned %d points, want %d", len(got), len(points))
	}
	for i := range points {
		if got[i].Hour != points[i].Hour || got[i].Value != points[i].Value {
			t.Errorf("point %d = (%d, %v), want (%d, %v)", i, got[i].Hour, got[i].Value, points[i].Hour, points[i].Value)
		}
		if !got[i].Time.Equal(points[i].Time) {
			t.Errorf("point %d time = %v, want %v", i, got[i].Time, points[i].Time)
		}
	}
}

func TestCSV_RoundTripRoundsToPrecision(t *testing.T) {
	points := pointsFrom([]int{0, 1}, []float64{21.04, 21.06})
	sum, _ := Summarize(points)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Series{Variable: "t2", Points: points}, sum, 1); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	got, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if got[0].Value != 21.0 || got[1].Value != 21.1 {
		t.Errorf("values = %v, %v; want 21.0, 21.1", got[0].Value, got[1].Value)
	}
}

func TestParseCSV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"wrong header", "hour,value\n1,2\n"},
		{"bad hour", "forecast_hour,timestamp,value\nx,2026-10-01T00:00:00Z,1\n"},
		{"bad time", "forecast_hour,timestamp,value\n1,yesterday,1\n"},
		{"bad value", "forecast_hour,timestamp,value\n1,2026-10-01T00:00:00Z,abc\n"},
		{"short row", "forecast_hour,timestamp,value\n1,2026-10-01T00:00:00Z\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.in)); !errors.Is(err, ErrBadCSV) {
				t.Errorf("ParseCSV() error = %v, want ErrBadCSV", err)
			}
		})
	}
}
