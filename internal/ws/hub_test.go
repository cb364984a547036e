package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrustbench/thrustbench/internal/telemetry"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server, chan telemetry.Reading) {
	t.Helper()
	readings := make(chan telemetry.Reading, 64)
	hub := New(readings)
	t.Cleanup(hub.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/dashboard", hub.ServeDashboard)
	mux.HandleFunc("/ws/stand", hub.ServeStand)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return hub, srv, readings
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) telemetry.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return ev
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DashboardBroadcast(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	conn := dial(t, srv, "/ws/dashboard")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client registration")

	// First frame is always the stand status snapshot.
	ev := readEvent(t, conn)
	if ev.Event != telemetry.EventStandStatus {
		t.Fatalf("first event = %q, want %q", ev.Event, telemetry.EventStandStatus)
	}

	hub.Reading(telemetry.Reading{Timestamp: 42, Force: 12.5})
	ev = readEvent(t, conn)
	if ev.Event != telemetry.EventReading {
		t.Fatalf("event = %q, want %q", ev.Event, telemetry.EventReading)
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["force"] != 12.5 {
		t.Errorf("reading payload = %v", ev.Data)
	}
}

func TestHub_MultipleDashboards(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	a := dial(t, srv, "/ws/dashboard")
	b := dial(t, srv, "/ws/dashboard")
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "both clients")

	readEvent(t, a) // stand status snapshots
	readEvent(t, b)

	hub.Broadcast(telemetry.EventStatus, map[string]string{"status": "recording"})
	for _, conn := range []*websocket.Conn{a, b} {
		if ev := readEvent(t, conn); ev.Event != telemetry.EventStatus {
			t.Errorf("event = %q, want %q", ev.Event, telemetry.EventStatus)
		}
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	conn := dial(t, srv, "/ws/dashboard")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "registration")

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "unregistration")
}

func TestHub_StandReadingsForwarded(t *testing.T) {
	_, srv, readings := newTestHub(t)

	stand := dial(t, srv, "/ws/stand")
	msg := map[string]any{"type": "reading", "timestamp": 1234, "force": 51.7, "raw": 8440308}
	if err := stand.WriteJSON(msg); err != nil {
		t.Fatalf("write reading: %v", err)
	}

	select {
	case r := <-readings:
		if r.Timestamp != 1234 || r.Force != 51.7 || r.Raw != 8440308 {
			t.Errorf("forwarded reading = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reading never reached the ingest channel")
	}

	// Non-reading frames are ignored, malformed frames skipped.
	stand.WriteJSON(map[string]any{"type": "hello"})                       //nolint:errcheck
	stand.WriteMessage(websocket.TextMessage, []byte("{not json"))         //nolint:errcheck
	stand.WriteJSON(map[string]any{"type": "reading", "timestamp": 2, "force": 1.0}) //nolint:errcheck

	select {
	case r := <-readings:
		if r.Timestamp != 2 {
			t.Errorf("unexpected reading %+v, junk frames should be dropped", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second reading never arrived")
	}
}

func TestHub_SendCommand(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	// No stand link yet.
	if err := hub.SendCommand(telemetry.Command{Type: telemetry.CmdTare}); !errors.Is(err, ErrStandOffline) {
		t.Fatalf("SendCommand err = %v, want ErrStandOffline", err)
	}

	stand := dial(t, srv, "/ws/stand")
	waitFor(t, hub.StandConnected, "stand link")

	if err := hub.SendCommand(telemetry.Command{Type: telemetry.CmdStartTest}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	stand.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd telemetry.Command
	if err := stand.ReadJSON(&cmd); err != nil {
		t.Fatalf("stand read: %v", err)
	}
	if cmd.Type != telemetry.CmdStartTest {
		t.Errorf("received command = %+v, want start_test", cmd)
	}
}

func TestHub_StandStatusBroadcast(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	dash := dial(t, srv, "/ws/dashboard")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "dashboard")

	ev := readEvent(t, dash)
	if data, _ := ev.Data.(map[string]any); data["connected"] != false {
		t.Fatalf("initial stand status = %v, want disconnected", ev.Data)
	}

	stand := dial(t, srv, "/ws/stand")
	ev = readEvent(t, dash)
	if ev.Event != telemetry.EventStandStatus {
		t.Fatalf("event = %q, want stand status", ev.Event)
	}
	if data, _ := ev.Data.(map[string]any); data["connected"] != true {
		t.Errorf("stand status = %v, want connected", ev.Data)
	}

	stand.Close()
	ev = readEvent(t, dash)
	if data, _ := ev.Data.(map[string]any); data["connected"] != false {
		t.Errorf("stand status = %v, want disconnected after close", ev.Data)
	}
}

func TestHub_CalibrationForwarded(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	type calib struct {
		offset int64
		scale  float64
	}
	got := make(chan calib, 1)
	hub.OnCalibration(func(offset int64, scale float64) {
		got <- calib{offset, scale}
	})

	dash := dial(t, srv, "/ws/dashboard")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "dashboard")
	readEvent(t, dash) // stand status snapshot

	stand := dial(t, srv, "/ws/stand")
	readEvent(t, dash) // stand connected broadcast

	if err := stand.WriteJSON(map[string]any{"type": "calibration", "offset": 8388608, "scale": 420.5}); err != nil {
		t.Fatalf("write calibration: %v", err)
	}

	select {
	case c := <-got:
		if c.offset != 8388608 || c.scale != 420.5 {
			t.Errorf("calibration sink got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("calibration sink never called")
	}

	ev := readEvent(t, dash)
	if ev.Event != telemetry.EventCalibration {
		t.Fatalf("event = %q, want %q", ev.Event, telemetry.EventCalibration)
	}
	if data, _ := ev.Data.(map[string]any); data["scale"] != 420.5 {
		t.Errorf("calibration payload = %v", ev.Data)
	}
}

func TestHub_NewStandReplacesOld(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	first := dial(t, srv, "/ws/stand")
	waitFor(t, hub.StandConnected, "first stand")

	second := dial(t, srv, "/ws/stand")

	// The server closes the old link when the replacement registers; once
	// that close is observed, commands can only reach the new link.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	if err := hub.SendCommand(telemetry.Command{Type: telemetry.CmdTare}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd telemetry.Command
	if err := second.ReadJSON(&cmd); err != nil {
		t.Fatalf("second stand read: %v", err)
	}
	if cmd.Type != telemetry.CmdTare {
		t.Errorf("command = %+v, want tare", cmd)
	}
}
