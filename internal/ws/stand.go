package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// standReadLimit bounds one stand frame. Readings are small JSON objects.
const standReadLimit = 1024

// standMessage is the envelope the stand firmware (or simulator) sends.
// "reading" frames carry a force sample; "calibration" frames report the
// offset/scale pair computed on the stand after a calibrate command. Anything
// else is ignored.
type standMessage struct {
	Type      string  `json:"type"`
	Timestamp int64   `json:"timestamp"`
	Force     float64 `json:"force"`
	Raw       int     `json:"raw"`
	Offset    int64   `json:"offset"`
	Scale     float64 `json:"scale"`
}

// standConn is the single stand link. Commands flow out through send;
// readings flow in through the hub's readings channel.
type standConn struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *standConn) close() {
	close(s.send)
}

// ServeStand upgrades the HTTP connection and serves the stand link. A new
// stand connection replaces any existing one. Blocks until the connection
// closes.
func (h *Hub) ServeStand(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := &standConn{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	if prev := h.stand; prev != nil {
		prev.close()
	}
	h.stand = s
	h.mu.Unlock()

	slog.Info("ws: stand connected", "remote", r.RemoteAddr)
	h.Broadcast(telemetry.EventStandStatus, map[string]bool{"connected": true})

	go s.writePump()
	h.standReadLoop(s)

	h.mu.Lock()
	if h.stand == s {
		h.stand = nil
	}
	h.mu.Unlock()

	slog.Info("ws: stand disconnected", "remote", r.RemoteAddr)
	h.Broadcast(telemetry.EventStandStatus, map[string]bool{"connected": false})
}

// StandConnected reports whether a stand link is currently up.
func (h *Hub) StandConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stand != nil
}

// SendCommand delivers a control command to the stand. Implements
// session.CommandSink. Returns ErrStandOffline when no link is up.
func (h *Hub) SendCommand(cmd telemetry.Command) error {
	msg, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	h.mu.RLock()
	s := h.stand
	h.mu.RUnlock()

	if s == nil {
		return ErrStandOffline
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrStandOffline
	}
}

// standReadLoop parses reading frames off the stand link and forwards them
// into the ingest channel. Blocks until the connection closes.
func (h *Hub) standReadLoop(s *standConn) {
	defer s.conn.Close()
	s.conn.SetReadLimit(standReadLimit)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg standMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("ws: malformed stand frame", "err", err)
			continue
		}

		if msg.Type == "calibration" {
			slog.Info("ws: calibration result from stand",
				"offset", msg.Offset, "scale", msg.Scale)
			h.mu.RLock()
			sink := h.calibration
			h.mu.RUnlock()
			if sink != nil {
				sink(msg.Offset, msg.Scale)
			}
			h.Broadcast(telemetry.EventCalibration, map[string]any{
				"offset": msg.Offset,
				"scale":  msg.Scale,
			})
			continue
		}
		if msg.Type != "" && msg.Type != "reading" {
			continue
		}

		h.readings <- telemetry.Reading{
			Timestamp: msg.Timestamp,
			Force:     msg.Force,
			Raw:       msg.Raw,
		}
	}
}

// writePump drains outgoing commands to the stand connection.
func (s *standConn) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
}
