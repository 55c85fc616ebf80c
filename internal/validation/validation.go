// Package validation checks API and CLI inputs before they reach the core.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidCoordinates is returned for a missing, unparsable or out-of-range lat/lon.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidHour is returned for a missing, unparsable or negative forecast hour.
	ErrInvalidHour = errors.New("invalid forecast hour")
	// ErrInvalidVariable is returned for a malformed variable name.
	ErrInvalidVariable = errors.New("invalid variable name")
	// ErrInvalidViewer is returned for a malformed viewer ID.
	ErrInvalidViewer = errors.New("invalid viewer id")
)

var (
	variablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	viewerPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
		return variablePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("viewerid", func(fl validator.FieldLevel) bool {
		return viewerPattern.MatchString(fl.Field().String())
	})
	return v
}

type coordinateQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

type hourQuery struct {
	Hour int `validate:"gte=0,lte=10000"`
}

type variableQuery struct {
	Name string `validate:"required,max=32,varname"`
}

type viewerQuery struct {
	ID string `validate:"omitempty,max=64,viewerid"`
}

// ParseCoordinates parses and range-checks latitude and longitude strings.
func ParseCoordinates(latStr, lonStr string) (lat, lon float64, err error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return 0, 0, fmt.Errorf("%w: lat and lon are required", ErrInvalidCoordinates)
	}
	if lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: lat %q is not a number", ErrInvalidCoordinates, latStr)
	}
	if lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: lon %q is not a number", ErrInvalidCoordinates, lonStr)
	}
	// NaN passes every comparison tag, so reject it explicitly.
	if lat != lat || lon != lon {
		return 0, 0, fmt.Errorf("%w: NaN", ErrInvalidCoordinates)
	}
	if err := validate.Struct(coordinateQuery{Lat: lat, Lon: lon}); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidCoordinates, describe(err))
	}
	return lat, lon, nil
}

// ParseHour parses a non-negative forecast hour.
func ParseHour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidHour, s)
	}
	if err := validate.Struct(hourQuery{Hour: h}); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHour, describe(err))
	}
	return h, nil
}

// ValidateVariable checks the shape of a variable name: lowercase letters,
// digits and underscores, starting with a letter. Catalog membership is
// checked by the caller.
func ValidateVariable(name string) error {
	if err := validate.Struct(variableQuery{Name: name}); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidVariable, describe(err))
	}
	return nil
}

// ValidateViewerID accepts an empty ID or up to 64 of [A-Za-z0-9_-].
func ValidateViewerID(id string) error {
	if err := validate.Struct(viewerQuery{ID: id}); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidViewer, describe(err))
	}
	return nil
}

// describe flattens validator field errors into "Field failed tag" phrases.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
