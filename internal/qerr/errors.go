// Package qerr defines the typed error kinds surfaced across the
// navigation core, per the error handling design: domain and config
// errors are caller-visible, map-bound errors during a filter update
// degrade to a quality-zero response instead of propagating.
package qerr

import (
	"errors"
	"strconv"
)

// Sentinel kinds. Wrap with fmt.Errorf("%w: ...", Kind) at the call
// site and compare with errors.Is.
var (
	// ErrDomain marks non-finite inputs, out-of-range lat/lon, or a
	// negative dt. Always caller-visible; never mutates state.
	ErrDomain = errors.New("domain error")

	// ErrConfig marks an invalid construction parameter (window size,
	// calibration matrix shape). Fatal at construction.
	ErrConfig = errors.New("config error")

	// ErrMapIO marks an unreadable raster source. Fatal at load.
	ErrMapIO = errors.New("map io error")

	// ErrMapFormat marks a non-uniform grid or missing coordinate
	// vectors. Fatal at load.
	ErrMapFormat = errors.New("map format error")

	// ErrOutOfMap marks a query whose interpolation stencil falls
	// outside the grid. Caller-visible; an EKF update skips and
	// reports quality 0 rather than propagating.
	ErrOutOfMap = errors.New("out of map error")

	// ErrNumeric marks an internal numerical guard trip (S below
	// epsilon, NaN in a stencil). Never propagated to callers; the
	// update is downgraded to a no-op with quality 0.
	ErrNumeric = errors.New("numeric warning")
)

// OutOfMapError carries the offending coordinate alongside ErrOutOfMap
// so callers can report it without re-deriving it.
type OutOfMapError struct {
	Lat, Lon float64
}

func (e *OutOfMapError) Error() string {
	return "out of map error: " + formatLatLon(e.Lat, e.Lon)
}

func (e *OutOfMapError) Unwrap() error { return ErrOutOfMap }

func formatLatLon(lat, lon float64) string {
	return "(" + strconv.FormatFloat(lat, 'f', 6, 64) + ", " +
		strconv.FormatFloat(lon, 'f', 6, 64) + ")"
}
