package models

import "fmt"

// GridKey identifies one cached grid: a variable at a forecast hour.
type GridKey struct {
	Variable string
	Hour     int
}

func (k GridKey) String() string {
	return fmt.Sprintf("%s@fh%03d", k.Variable, k.Hour)
}
