package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// Default path templates, relative to the data root.
const (
	DefaultGridPathPadded   = "{variable}/json/fh_{hour3}.json"
	DefaultGridPathUnpadded = "{variable}/json/fh_{hour}.json"
	DefaultOverlayPath      = "{variable}/forecast/fh_{hour3}.png"
	DefaultColorbarPath     = "{variable}/cbar/fh_{hour3}.png"
)

// PathResolver expands path templates for a grid key. Grid templates are tried
// in order; the first that resolves wins.
//
// Placeholders: {variable}, {hour} (unpadded), {hour3} (zero-padded to 3 digits).
type PathResolver struct {
	grid     []string
	overlay  string
	colorbar string
}

// NewPathResolver validates the templates. Every grid template needs {variable}
// and an hour placeholder, otherwise distinct keys would collide.
func NewPathResolver(gridTemplates []string, overlay, colorbar string) (*PathResolver, error) {
	if len(gridTemplates) == 0 {
		return nil, fmt.Errorf("at least one grid path template is required")
	}
	for _, t := range gridTemplates {
		if !strings.Contains(t, "{variable}") {
			return nil, fmt.Errorf("grid path %q: missing {variable}", t)
		}
		if !strings.Contains(t, "{hour}") && !strings.Contains(t, "{hour3}") {
			return nil, fmt.Errorf("grid path %q: missing {hour} or {hour3}", t)
		}
	}
	if overlay == "" {
		overlay = DefaultOverlayPath
	}
	if colorbar == "" {
		colorbar = DefaultColorbarPath
	}
	return &PathResolver{
		grid:     append([]string(nil), gridTemplates...),
		overlay:  overlay,
		colorbar: colorbar,
	}, nil
}

// DefaultPathResolver tries the padded grid path first, then the unpadded one.
func DefaultPathResolver() *PathResolver {
	p, _ := NewPathResolver([]string{DefaultGridPathPadded, DefaultGridPathUnpadded}, "", "")
	return p
}

// GridPaths returns the candidate document paths for key in resolution order.
// Templates that expand to the same path are tried once.
func (p *PathResolver) GridPaths(key models.GridKey) []string {
	out := make([]string, 0, len(p.grid))
	seen := make(map[string]struct{}, len(p.grid))
	for _, t := range p.grid {
		path := expand(t, key)
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

// OverlayPath returns the forecast raster path for key.
func (p *PathResolver) OverlayPath(key models.GridKey) string {
	return expand(p.overlay, key)
}

// ColorbarPath returns the colorbar image path for key.
func (p *PathResolver) ColorbarPath(key models.GridKey) string {
	return expand(p.colorbar, key)
}

func expand(tmpl string, key models.GridKey) string {
	return strings.NewReplacer(
		"{variable}", key.Variable,
		"{hour3}", fmt.Sprintf("%03d", key.Hour),
		"{hour}", strconv.Itoa(key.Hour),
	).Replace(tmpl)
}
