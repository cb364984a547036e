// Command simulator plays a synthetic test stand against a running server:
// it dials the stand websocket endpoint, streams idle noise, and performs a
// full burn whenever the server sends a start_test command. Useful for
// developing and demoing without hardware.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrustbench/thrustbench/internal/sim"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

func main() {
	server := flag.String("server", "ws://localhost:8080/ws/stand", "stand websocket URL")
	peak := flag.Float64("peak", 50, "peak thrust in newtons")
	burn := flag.Float64("burn", 2.0, "burn time in seconds")
	profile := flag.String("profile", sim.ProfileNeutral, "burn profile: progressive|neutral|regressive")
	rate := flag.Float64("rate", 80, "sample rate in Hz")
	cato := flag.Bool("cato", false, "simulate a catastrophic failure instead of a normal burn")
	noise := flag.Float64("noise", 0.02, "gaussian noise as a fraction of peak thrust")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	conn, _, err := websocket.DefaultDialer.Dial(*server, nil)
	if err != nil {
		slog.Error("dial failed", "server", *server, "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.Info("connected", "server", *server)

	motor := &sim.Motor{
		PeakThrust:    *peak,
		BurnTime:      *burn,
		Profile:       *profile,
		NoiseFraction: *noise,
		Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	s := &stand{conn: conn, motor: motor, rate: *rate, cato: *cato}

	go s.commandLoop()
	s.streamLoop()
}

// stand holds the simulated device state: an optional in-progress burn and
// the outgoing connection.
type stand struct {
	conn  *websocket.Conn
	motor *sim.Motor
	rate  float64
	cato  bool

	// wmu serializes writes: the stream loop and command replies share conn.
	wmu sync.Mutex

	mu      sync.Mutex
	playing []telemetry.Reading
	idx     int
}

// commandLoop reacts to server commands. start_test arms a burn; stop_test
// aborts one; tare and calibrate are acknowledged in the log only — the real
// firmware adjusts its load cell amplifier here.
func (s *stand) commandLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "err", err)
			os.Exit(0)
		}

		var cmd telemetry.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Type {
		case telemetry.CmdStartTest:
			s.mu.Lock()
			if s.cato {
				s.playing = s.motor.CATOCurve(s.rate)
			} else {
				s.playing = s.motor.Curve(s.rate)
			}
			s.idx = 0
			s.mu.Unlock()
			slog.Info("burn started", "profile", s.motor.Profile, "cato", s.cato)

		case telemetry.CmdStopTest:
			s.mu.Lock()
			s.playing = nil
			s.mu.Unlock()
			slog.Info("burn aborted")

		case telemetry.CmdTare:
			slog.Info("tare acknowledged")

		case telemetry.CmdCalibrate:
			// Pretend the load cell resolved the reference mass to a scale
			// factor, like the real firmware does.
			scale := cmd.KnownMassG * 101.97 // counts per newton for a fake 24-bit cell
			s.wmu.Lock()
			err := s.conn.WriteJSON(map[string]any{
				"type":   "calibration",
				"offset": 8388608,
				"scale":  math.Round(scale*100) / 100,
			})
			s.wmu.Unlock()
			if err != nil {
				slog.Error("calibration reply failed", "err", err)
			}
			slog.Info("calibrate acknowledged", "known_mass_g", cmd.KnownMassG)
		}
	}
}

// streamLoop sends one reading per sample interval: the next burn sample
// while a burn is armed, idle noise otherwise. Timestamps come from the
// simulator's own monotonic clock, like real firmware.
func (s *stand) streamLoop() {
	interval := time.Duration(float64(time.Second) / s.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	epoch := time.Now()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		force := math.Abs(rng.NormFloat64() * 0.05)

		s.mu.Lock()
		if s.playing != nil && s.idx < len(s.playing) {
			force = s.playing[s.idx].Force
			s.idx++
			if s.idx == len(s.playing) {
				s.playing = nil
				slog.Info("burn complete")
			}
		}
		s.mu.Unlock()

		msg := map[string]any{
			"type":      "reading",
			"timestamp": time.Since(epoch).Milliseconds(),
			"force":     math.Round(force*100) / 100,
			"raw":       int(force*1000) + 8388608,
		}
		s.wmu.Lock()
		err := s.conn.WriteJSON(msg)
		s.wmu.Unlock()
		if err != nil {
			slog.Error("write failed", "err", err)
			return
		}
	}
}
