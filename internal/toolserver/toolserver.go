// Package toolserver exposes the navigation service's four operations
// as a JSON envelope suitable for an AI tool-call surface: one
// dispatch function keyed by operation name, each returning either a
// result payload or a structured error.
package toolserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/navservice"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/sensors"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/simulate"
)

// Server dispatches the four tool operations against a navigation
// service.
type Server struct {
	svc *navservice.Service
}

func New(svc *navservice.Service) *Server {
	return &Server{svc: svc}
}

// Envelope is the uniform request/response shape: exactly one
// operation name and its JSON-encoded arguments in, a result or a
// structured error out.
type Envelope struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args"`
}

// ErrorPayload is returned instead of Result when the operation fails.
type ErrorPayload struct {
	Kind    string  `json:"kind"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// Dispatch routes env to the matching operation and returns either a
// JSON-marshalable result or an ErrorPayload.
func (s *Server) Dispatch(env Envelope) (interface{}, *ErrorPayload) {
	switch env.Operation {
	case "query_magnetic_field":
		return s.queryMagneticField(env.Args)
	case "estimate_position":
		return s.estimatePosition(env.Args)
	case "calibrate_sensor":
		return s.calibrateSensor(env.Args)
	case "simulate_trajectory":
		return s.simulateTrajectory(env.Args)
	default:
		return nil, &ErrorPayload{Kind: "ConfigError", Message: fmt.Sprintf("unknown operation %q", env.Operation)}
	}
}

type queryFieldArgs struct {
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	InterpolationMethod  string  `json:"interpolation_method"`
}

func (s *Server) queryMagneticField(raw json.RawMessage) (interface{}, *ErrorPayload) {
	var a queryFieldArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, badArgs(err)
	}
	method := mapengine.InterpMethod(a.InterpolationMethod)
	val, err := s.svc.QueryField(a.Latitude, a.Longitude, method)
	if err != nil {
		return nil, mapErr(err)
	}
	return map[string]interface{}{
		"value":  val,
		"unit":   "nT",
		"method": method,
	}, nil
}

type estimatePositionArgs struct {
	MagneticField     float64  `json:"magnetic_field"`
	InitialLatitude   *float64 `json:"initial_latitude"`
	InitialLongitude  *float64 `json:"initial_longitude"`
	Dt                float64  `json:"dt"`
	Reset             bool     `json:"reset"`
}

func (s *Server) estimatePosition(raw json.RawMessage) (interface{}, *ErrorPayload) {
	var a estimatePositionArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, badArgs(err)
	}
	if a.Dt == 0 {
		a.Dt = 1.0
	}
	if a.Reset && a.InitialLatitude != nil && a.InitialLongitude != nil {
		if err := s.svc.Reset(*a.InitialLatitude, *a.InitialLongitude); err != nil {
			return nil, mapErr(err)
		}
	}

	est, err := s.svc.Observe(sensors.MagneticVector{Bx: a.MagneticField}, a.Dt)
	if err != nil {
		return nil, mapErr(err)
	}
	return map[string]interface{}{
		"lat": est.Lat, "lon": est.Lon,
		"vlat": est.VLat, "vlon": est.VLon,
		"quality":         est.Quality,
		"covariance_diag": est.CovarianceDiag,
	}, nil
}

type calibrateSensorArgs struct {
	Samples [][3]float64 `json:"samples"`
	Method  string       `json:"method"`
}

func (s *Server) calibrateSensor(raw json.RawMessage) (interface{}, *ErrorPayload) {
	var a calibrateSensorArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, badArgs(err)
	}
	vecs := make([]sensors.MagneticVector, len(a.Samples))
	for i, t := range a.Samples {
		vecs[i] = sensors.MagneticVector{Bx: t[0], By: t[1], Bz: t[2]}
	}
	cal, err := sensors.EllipsoidFit(vecs, a.Method)
	if err != nil {
		return nil, mapErr(err)
	}
	return map[string]interface{}{
		"offset": cal.Offset,
		"scale":  cal.Scale,
	}, nil
}

type simulateTrajectoryArgs struct {
	Start       [2]float64 `json:"start"`
	End         [2]float64 `json:"end"`
	Speed       float64    `json:"speed"`
	SampleRate  float64    `json:"sample_rate"`
	NoiseLevel  float64    `json:"noise_level"`
	PathType    string     `json:"path_type"`
}

func (s *Server) simulateTrajectory(raw json.RawMessage) (interface{}, *ErrorPayload) {
	var a simulateTrajectoryArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, badArgs(err)
	}
	params := simulate.Params{
		StartLat: a.Start[0], StartLon: a.Start[1],
		EndLat: a.End[0], EndLon: a.End[1],
		SpeedMPS: a.Speed, SampleRateHz: a.SampleRate,
		NoiseStdDev: a.NoiseLevel, Path: simulate.PathType(a.PathType),
	}
	field := func(lat, lon float64) float64 {
		v, err := s.svc.QueryField(lat, lon, "")
		if err != nil {
			return 0
		}
		return v
	}
	samples, err := simulate.Run(params, field)
	if err != nil {
		return nil, mapErr(err)
	}
	return samples, nil
}

func badArgs(err error) *ErrorPayload {
	return &ErrorPayload{Kind: "ConfigError", Message: fmt.Sprintf("malformed arguments: %v", err)}
}

func mapErr(err error) *ErrorPayload {
	var oob *qerr.OutOfMapError
	if errors.As(err, &oob) {
		return &ErrorPayload{Kind: "OutOfMapError", Message: err.Error(), Lat: oob.Lat, Lon: oob.Lon}
	}
	switch {
	case errors.Is(err, qerr.ErrDomain):
		return &ErrorPayload{Kind: "DomainError", Message: err.Error()}
	case errors.Is(err, qerr.ErrConfig):
		return &ErrorPayload{Kind: "ConfigError", Message: err.Error()}
	case errors.Is(err, qerr.ErrMapIO):
		return &ErrorPayload{Kind: "MapIOError", Message: err.Error()}
	case errors.Is(err, qerr.ErrMapFormat):
		return &ErrorPayload{Kind: "MapFormatError", Message: err.Error()}
	case errors.Is(err, qerr.ErrNumeric):
		return &ErrorPayload{Kind: "NumericWarning", Message: err.Error()}
	default:
		return &ErrorPayload{Kind: "Error", Message: err.Error()}
	}
}
