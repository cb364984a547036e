package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thrustbench/thrustbench/internal/metrics"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// Status is the stand lifecycle state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRecording   Status = "recording"
	StatusCalibrating Status = "calibrating"
)

var (
	// ErrAlreadyRecording rejects start while a recording is active.
	ErrAlreadyRecording = errors.New("a test is already recording")

	// ErrBusy rejects commands that conflict with the current state.
	ErrBusy = errors.New("stand is busy")

	// ErrNotRecording rejects stop when no recording is active.
	ErrNotRecording = errors.New("no active recording")

	// ErrNoData means stop found an empty buffer; no record is produced.
	ErrNoData = errors.New("no readings recorded")

	// ErrInvalidCalibration rejects a non-positive known mass.
	ErrInvalidCalibration = errors.New("known mass must be positive")
)

// TestSession is the live aggregate of one recording: identity, anchor time
// and the rolling reading buffer. It is mutated only by the Machine while
// Recording and sealed on stop.
type TestSession struct {
	ID        string
	Label     string
	StartedAt time.Time

	// anchored reports whether the first reading has fixed time-zero.
	anchored bool
	// anchor is the data-stream timestamp (ms) of the first accepted
	// reading. Readings are re-based onto it so traces start at zero
	// regardless of transport latency after the start command.
	anchor int64

	readings []telemetry.Reading
}

// Readings returns the sealed buffer. Only valid after the session has been
// detached from the machine.
func (s *TestSession) Readings() []telemetry.Reading { return s.readings }

// CommandSink forwards control commands to the stand firmware.
type CommandSink interface {
	SendCommand(telemetry.Command) error
}

// Finalizer seals a stopped session into a durable record: it runs the
// analysis pipeline and persists the result.
type Finalizer interface {
	Finalize(sess *TestSession) (*store.TestRecord, error)
}

// Events receives the machine's outbound notifications. Implementations must
// not block: they are called from the ingest path.
type Events interface {
	Status(Status, int)
	Reading(telemetry.Reading)
	TestComplete(*store.TestRecord)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) Status(Status, int)             {}
func (NopEvents) Reading(telemetry.Reading)      {}
func (NopEvents) TestComplete(*store.TestRecord) {}

// Machine is the session state machine. It owns the single current-session
// slot: at most one recording is active system-wide, and conflicting
// commands are rejected, never queued.
//
// All exported methods are safe for concurrent use.
type Machine struct {
	sink      CommandSink
	finalizer Finalizer
	events    Events
	now       func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	status  Status
	current *TestSession
	dropped uint64 // readings seen while not recording
}

// New creates an idle Machine. events may be nil.
func New(sink CommandSink, fin Finalizer, events Events) *Machine {
	if events == nil {
		events = NopEvents{}
	}
	return &Machine{
		sink:      sink,
		finalizer: fin,
		events:    events,
		now:       time.Now,
		status:    StatusIdle,
	}
}

// Status returns the current state and the live buffer size.
func (m *Machine) Status() (Status, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	if m.current != nil {
		n = len(m.current.readings)
	}
	return m.status, n
}

// Start opens a fresh recording session. Rejected with ErrAlreadyRecording
// while Recording and ErrBusy while Calibrating. The stand is told to begin
// streaming before the transition commits.
func (m *Machine) Start(label string) (id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case StatusRecording:
		return "", ErrAlreadyRecording
	case StatusCalibrating:
		return "", ErrBusy
	}

	if err := m.sink.SendCommand(telemetry.Command{Type: telemetry.CmdStartTest}); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	m.current = &TestSession{
		ID:        uuid.NewString(),
		Label:     label,
		StartedAt: m.now(),
	}
	m.status = StatusRecording

	slog.Info("session: recording started", "id", m.current.ID, "label", label)
	metrics.Recording.Set(1)
	m.events.Status(StatusRecording, 0)
	return m.current.ID, nil
}

// Stop seals the current session and finalizes it synchronously: the call
// does not return until analysis has run and the record is persisted. An
// empty buffer discards the session and returns ErrNoData; the machine is
// Idle either way.
func (m *Machine) Stop() (*store.TestRecord, error) {
	m.mu.Lock()
	if m.status != StatusRecording {
		m.mu.Unlock()
		return nil, ErrNotRecording
	}

	sess := m.current
	m.current = nil
	m.status = StatusIdle

	if err := m.sink.SendCommand(telemetry.Command{Type: telemetry.CmdStopTest}); err != nil {
		slog.Warn("session: stop command not delivered", "err", err)
	}
	m.mu.Unlock()

	metrics.Recording.Set(0)
	m.events.Status(StatusIdle, 0)

	if len(sess.readings) == 0 {
		slog.Warn("session: stop with empty buffer, discarding", "id", sess.ID)
		return nil, ErrNoData
	}

	slog.Info("session: recording stopped",
		"id", sess.ID, "readings", len(sess.readings))

	rec, err := m.finalizer.Finalize(sess)
	if err != nil {
		return nil, err
	}
	m.events.TestComplete(rec)
	return rec, nil
}

// Calibrate forwards a calibration command to the stand with the reference
// mass in grams. Only valid from Idle; the machine passes through
// Calibrating and back.
func (m *Machine) Calibrate(knownMassG float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle {
		return ErrBusy
	}
	if knownMassG <= 0 {
		return ErrInvalidCalibration
	}

	m.status = StatusCalibrating
	m.events.Status(StatusCalibrating, 0)

	err := m.sink.SendCommand(telemetry.Command{
		Type:       telemetry.CmdCalibrate,
		KnownMassG: knownMassG,
	})

	m.status = StatusIdle
	m.events.Status(StatusIdle, 0)

	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	slog.Info("session: calibration requested", "known_mass_g", knownMassG)
	return nil
}

// Tare forwards a zeroing command to the stand. Only valid from Idle.
func (m *Machine) Tare() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusIdle {
		return ErrBusy
	}
	if err := m.sink.SendCommand(telemetry.Command{Type: telemetry.CmdTare}); err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	return nil
}

// Ingest accepts one reading from the stand. While Recording it is appended
// to the session buffer, re-based onto the session's anchor time; otherwise
// it is counted and dropped. Readings are always passed through to events
// for live display. Never blocks on analysis.
func (m *Machine) Ingest(r telemetry.Reading) {
	m.mu.Lock()
	if m.status == StatusRecording {
		sess := m.current
		if !sess.anchored {
			sess.anchored = true
			sess.anchor = r.Timestamp
		}
		r.Timestamp -= sess.anchor
		sess.readings = append(sess.readings, r)
		metrics.ReadingsIngested.Inc()
	} else {
		m.dropped++
		metrics.ReadingsDropped.Inc()
		if m.dropped%1000 == 1 {
			slog.Debug("session: readings while not recording", "dropped", m.dropped)
		}
	}
	m.mu.Unlock()

	m.events.Reading(r)
}

// Run drains readings from ch into Ingest until ctx is cancelled or ch
// closes. It is the single consumer of the ingest channel, preserving
// arrival order.
func (m *Machine) Run(ctx context.Context, ch <-chan telemetry.Reading) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			m.Ingest(r)
		}
	}
}
