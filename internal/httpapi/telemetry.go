package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TelemetryMessage is one broadcast tick of the filter's state.
type TelemetryMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	VLat      float64   `json:"vlat"`
	VLon      float64   `json:"vlon"`
	Quality   float64   `json:"quality"`
}

// telemetryHub broadcasts the navigation estimate to connected
// WebSocket clients at a fixed rate. Clients are never blocked on a
// slow reader: a full send buffer drops that client's tick rather
// than stalling the broadcaster.
type telemetryHub struct {
	mu       sync.Mutex
	clients  map[chan TelemetryMessage]struct{}
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func newTelemetryHub(log *logrus.Logger) *telemetryHub {
	return &telemetryHub{
		clients: make(map[chan TelemetryMessage]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *telemetryHub) broadcast(msg TelemetryMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *telemetryHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithError(err).Warn("telemetry websocket upgrade failed")
		}
		return
	}
	defer conn.Close()

	ch := make(chan TelemetryMessage, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	for msg := range ch {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
