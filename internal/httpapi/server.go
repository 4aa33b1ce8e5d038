// Package httpapi exposes the navigation service over HTTP: a thin
// public /estimate endpoint, a richer /api/v1/state snapshot, a
// WebSocket telemetry stream, and a health check.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruvnet/quantum-magnetic-navigation/internal/geo"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/navservice"
	"github.com/ruvnet/quantum-magnetic-navigation/internal/qerr"
)

// Server wraps the navigation service in an http.Server and owns its
// own telemetry broadcast loop.
type Server struct {
	svc       *navservice.Service
	log       *logrus.Logger
	jwtSecret string

	httpServer *http.Server
	telemetry  *telemetryHub
}

// Config configures the HTTP listener.
type Config struct {
	Addr      string
	JWTSecret string // empty disables bearer auth
}

// New builds a Server bound to svc; call Start to begin listening.
func New(cfg Config, svc *navservice.Service, log *logrus.Logger) *Server {
	return &Server{
		svc:       svc,
		log:       log,
		jwtSecret: cfg.JWTSecret,
		telemetry: newTelemetryHub(log),
		httpServer: &http.Server{
			Addr: cfg.Addr,
		},
	}
}

// Start begins listening in a background goroutine, and begins
// broadcasting telemetry ticks. It returns once the listener is
// configured; ListenAndServe errors after that are logged, not
// returned, matching the rest of the ambient stack's fire-and-forget
// server goroutine.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/estimate", s.handleEstimate)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/ws/telemetry", s.telemetry.handleWebSocket)

	var handler http.Handler = mux
	handler = requireAuth(s.jwtSecret, handler)
	handler = withRequestID(handler)
	s.httpServer.Handler = handler

	go s.broadcastLoop(ctx)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server error")
		}
	}()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.svc.State()
			s.telemetry.broadcast(TelemetryMessage{
				Timestamp: time.Now(),
				Lat:       st.Lat, Lon: st.Lon, VLat: st.VLat, VLon: st.VLon,
				Quality: st.Quality,
			})
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// estimateRequest is the thin public body: a position-domain
// observation, not a magnetic scalar. The tool surface's
// estimate_position accepts the magnetic shape; the two are never
// silently reinterpreted as each other.
type estimateRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type estimateResponse struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Quality float64 `json:"quality"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if !s.svc.HasMap() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "map not loaded"})
		return
	}

	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}

	if _, err := geo.New(req.Lat, req.Lon); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Per the documented position-domain semantics, this body re-centers
	// the filter on (lat,lon); it is never routed through Observe's
	// magnetic measurement update.
	est, err := s.svc.Recenter(req.Lat, req.Lon)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, qerr.ErrMapIO) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{Lat: est.Lat, Lon: est.Lon, Quality: est.Quality})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.svc.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lat": st.Lat, "lon": st.Lon,
		"vlat": st.VLat, "vlon": st.VLon,
		"quality":        st.Quality,
		"covariance_diag": [4]float64{st.P[0][0], st.P[1][1], st.P[2][2], st.P[3][3]},
		"request_id":     requestIDFrom(r),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
