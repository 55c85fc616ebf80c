// Command wrfgrid drives the grid viewer core from the terminal: detect a
// variable's forecast range, read one cell, or export a location's time series.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
