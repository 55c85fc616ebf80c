package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrBadCSV is returned when a CSV export cannot be parsed back.
var ErrBadCSV = errors.New("invalid series csv")

var csvHeader = []string{"forecast_hour", "timestamp", "value"}

// WriteCSV writes a "#"-prefixed metadata block, the data rows and a
// "#"-prefixed statistics block. Values are formatted with precision decimals.
func WriteCSV(w io.Writer, s Series, sum Summary, precision int) error {
	if precision < 0 {
		precision = 2
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', precision, 64) }
	coord := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

	cw := csv.NewWriter(w)
	records := [][]string{
		{"# Location", coord(s.Lat), coord(s.Lon)},
		{"# Variable", s.Variable},
		{"# Units", s.Units},
		{"# Points", strconv.Itoa(len(s.Points))},
		{"# Requested", strconv.Itoa(s.Requested)},
		{"# Missing", strconv.Itoa(s.Missing)},
		csvHeader,
	}
	for _, p := range s.Points {
		records = append(records, []string{strconv.Itoa(p.Hour), p.Time.UTC().Format(time.RFC3339), f(p.Value)})
	}
	records = append(records,
		[]string{"# Statistics"},
		[]string{"# Min", f(sum.Min)},
		[]string{"# Max", f(sum.Max)},
		[]string{"# Mean", f(sum.Mean)},
		[]string{"# StdDev", f(sum.StdDev)},
		[]string{"# Range", f(sum.Range)},
		[]string{"# Trend", string(sum.Trend), strconv.FormatFloat(sum.TrendSlope, 'g', 6, 64)},
	)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ParseCSV reads the data section of a WriteCSV export.
func ParseCSV(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadCSV, err)
	}
	if strings.Join(header, ",") != strings.Join(csvHeader, ",") {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrBadCSV, header)
	}

	var points []Point
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
		}
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("%w: row has %d fields", ErrBadCSV, len(rec))
		}
		hour, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: hour %q", ErrBadCSV, rec[0])
		}
		ts, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q", ErrBadCSV, rec[1])
		}
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q", ErrBadCSV, rec[2])
		}
		points = append(points, Point{Hour: hour, Time: ts, Value: v})
	}
	return points, nil
}
