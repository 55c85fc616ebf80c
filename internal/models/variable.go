package models

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownVariable is returned for a variable name not in the catalog.
var ErrUnknownVariable = errors.New("unknown variable")

// Variable describes one forecast field and how its values are displayed.
type Variable struct {
	Name      string `json:"name" yaml:"name"`
	Label     string `json:"label" yaml:"label"`
	Units     string `json:"units" yaml:"units"`
	Precision int    `json:"precision" yaml:"precision"`
	// MaxHour, when positive, is the known last forecast hour and skips probing.
	MaxHour int `json:"-" yaml:"max_hour"`
}

// Format renders v at the variable's display precision.
func (v Variable) Format(value float64) string {
	return strconv.FormatFloat(value, 'f', v.Precision, 64)
}

// Catalog is the ordered set of configured variables.
type Catalog struct {
	list   []Variable
	byName map[string]int
}

// NewCatalog builds a catalog, rejecting empty and duplicate names.
func NewCatalog(vars []Variable) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(vars))}
	for _, v := range vars {
		if v.Name == "" {
			return nil, errors.New("variable name is required")
		}
		if _, dup := c.byName[v.Name]; dup {
			return nil, fmt.Errorf("duplicate variable %q", v.Name)
		}
		c.byName[v.Name] = len(c.list)
		c.list = append(c.list, v)
	}
	return c, nil
}

// Lookup returns the named variable or ErrUnknownVariable.
func (c *Catalog) Lookup(name string) (Variable, error) {
	if i, ok := c.byName[name]; ok {
		return c.list[i], nil
	}
	return Variable{}, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// All returns the variables in configuration order.
func (c *Catalog) All() []Variable {
	out := make([]Variable, len(c.list))
	copy(out, c.list)
	return out
}

// Names returns the variable names in configuration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.list))
	for i, v := range c.list {
		out[i] = v.Name
	}
	return out
}
