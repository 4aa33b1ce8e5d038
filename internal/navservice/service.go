// Package navservice binds the sensor conditioner, the EKF, and the
// magnetic map behind the three operations every external surface
// (HTTP, tool calls, CLI) ultimately calls.
package navservice

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/fusion"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/mapengine"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/sensors"
)

// Estimate is what observe() hands back to a caller.
type Estimate struct {
	Lat, Lon, VLat, VLon float64
	Quality              float64
	CovarianceDiag       [4]float64
}

// Service is the one shared {EKF, map, conditioner} triple. It is not
// a package-level global: callers construct one at startup and pass
// it by handle to every HTTP handler, tool dispatcher, and CLI command.
type Service struct {
	ekf         *fusion.NavEKF
	field       *mapengine.MagneticMap // nil if no map was configured
	conditioner *sensors.Conditioner
	method      mapengine.InterpMethod
	log         *logrus.Logger
}

// New builds a service. field may be nil, in which case observe and
// query_field both fail with qerr.ErrMapIO (the HTTP layer translates
// that to 503, per the map-not-loaded contract).
func New(ekf *fusion.NavEKF, field *mapengine.MagneticMap, conditioner *sensors.Conditioner, method mapengine.InterpMethod, log *logrus.Logger) *Service {
	return &Service{ekf: ekf, field: field, conditioner: conditioner, method: method, log: log}
}

// Observe conditions a raw sample, predicts dt seconds forward, and
// folds the conditioned total-field scalar into the filter. Predict
// and Update each take the filter mutex (owned by ekf) for their own
// duration; it is not held between the two, so the predict and update
// steps of concurrent Observe calls can interleave. The map is
// read-only and any tile-cache fill it triggers happens without
// excluding concurrent query_field calls.
func (s *Service) Observe(raw sensors.MagneticVector, dt float64) (Estimate, error) {
	if s.field == nil {
		return Estimate{}, fmt.Errorf("%w: no magnetic map loaded", qerr.ErrMapIO)
	}

	conditioned := s.conditioner.Push(raw)
	zObs := conditioned.Total()

	if err := s.ekf.Predict(dt); err != nil {
		return Estimate{}, err
	}
	st, err := s.ekf.Update(zObs, s.field)
	if err != nil {
		return Estimate{}, err
	}

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"lat": st.Lat, "lon": st.Lon, "quality": st.Quality,
		}).Debug("observation folded into filter")
	}

	return Estimate{
		Lat: st.Lat, Lon: st.Lon, VLat: st.VLat, VLon: st.VLon,
		Quality:        st.Quality,
		CovarianceDiag: [4]float64{st.P[0][0], st.P[1][1], st.P[2][2], st.P[3][3]},
	}, nil
}

// QueryField answers a raw interpolated lookup, never touching the
// filter lock. method overrides the service default when non-empty.
func (s *Service) QueryField(lat, lon float64, method mapengine.InterpMethod) (float64, error) {
	if s.field == nil {
		return 0, fmt.Errorf("%w: no magnetic map loaded", qerr.ErrMapIO)
	}
	if method == "" {
		method = s.method
	}
	return s.field.Interpolate(lat, lon, method)
}

// Reset re-initializes the filter to (lat,lon) with zero velocity.
func (s *Service) Reset(lat, lon float64) error {
	return s.ekf.Reset(lat, lon)
}

// Recenter is the position-domain counterpart to Observe: it treats
// (lat,lon) as a waypoint to re-seed the filter on, not a magnetic
// scalar, and never routes it through the measurement update. It is
// what the thin public HTTP /estimate endpoint calls.
func (s *Service) Recenter(lat, lon float64) (Estimate, error) {
	if err := s.ekf.Reset(lat, lon); err != nil {
		return Estimate{}, err
	}
	st := s.ekf.State()

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"lat": st.Lat, "lon": st.Lon,
		}).Debug("filter re-centered on position observation")
	}

	return Estimate{
		Lat: st.Lat, Lon: st.Lon, VLat: st.VLat, VLon: st.VLon,
		Quality:        st.Quality,
		CovarianceDiag: [4]float64{st.P[0][0], st.P[1][1], st.P[2][2], st.P[3][3]},
	}, nil
}

// State returns the filter's current estimate without mutating it.
func (s *Service) State() fusion.State {
	return s.ekf.State()
}

// HasMap reports whether a magnetic map was successfully loaded.
func (s *Service) HasMap() bool { return s.field != nil }
