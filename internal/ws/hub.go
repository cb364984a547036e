package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrustbench/thrustbench/internal/metrics"
	"github.com/thrustbench/thrustbench/internal/session"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth. Sized for
	// reading pass-through bursts at ~100 samples/second.
	sendBufSize = 256
)

// ErrStandOffline is returned when a command is sent with no stand link up.
var ErrStandOffline = errors.New("stand not connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages the dashboard websocket clients and the single stand link.
// Dashboard clients receive every outbound event (readings, status changes,
// finished tests); the stand link carries readings in and commands out.
type Hub struct {
	readings chan<- telemetry.Reading

	mu          sync.RWMutex
	clients     map[*client]struct{}
	stand       *standConn
	calibration func(offset int64, scale float64)
}

// OnCalibration registers a sink for calibration results reported by the
// stand. Typically wired to the store's SaveCalibration.
func (h *Hub) OnCalibration(fn func(offset int64, scale float64)) {
	h.mu.Lock()
	h.calibration = fn
	h.mu.Unlock()
}

// client represents one connected dashboard client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that forwards stand readings into the given channel.
func New(readings chan<- telemetry.Reading) *Hub {
	return &Hub{
		readings: readings,
		clients:  make(map[*client]struct{}),
	}
}

// --- session.Events ----------------------------------------------------------

// Status broadcasts a session state change to all dashboards.
func (h *Hub) Status(st session.Status, bufferedReadings int) {
	h.Broadcast(telemetry.EventStatus, map[string]any{
		"status":    st,
		"recording": st == session.StatusRecording,
		"readings":  bufferedReadings,
	})
}

// Reading passes one force sample through to all dashboards.
func (h *Hub) Reading(r telemetry.Reading) {
	h.Broadcast(telemetry.EventReading, r)
}

// TestComplete announces a finalized record to all dashboards. The trace is
// omitted; dashboards fetch it over the REST API when needed.
func (h *Hub) TestComplete(rec *store.TestRecord) {
	h.Broadcast(telemetry.EventTestComplete, map[string]any{
		"test_id":  rec.ID,
		"analysis": rec.Analysis,
	})
}

// --- fan-out -----------------------------------------------------------------

// Broadcast sends one event to every connected dashboard client. Clients
// whose outgoing buffer is full are disconnected rather than allowed to slow
// the ingest path.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := json.Marshal(telemetry.Event{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			h.unregister(c)
		}
	}
}

// ServeDashboard upgrades the HTTP connection and serves a dashboard client.
// The current stand status is sent immediately on connect. Blocks until the
// connection closes.
func (h *Hub) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if msg, err := json.Marshal(telemetry.Event{
		Event: telemetry.EventStandStatus,
		Data:  map[string]bool{"connected": h.StandConnected()},
	}); err == nil {
		select {
		case c.send <- msg:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all dashboard clients and the stand link.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	stand := h.stand
	h.stand = nil
	h.mu.Unlock()

	if stand != nil {
		stand.close()
	}
	metrics.DashboardClients.Set(0)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.DashboardClients.Set(float64(n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.DashboardClients.Set(float64(n))
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
