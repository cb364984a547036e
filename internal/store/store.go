package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thrustbench/thrustbench/internal/analysis"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// ErrNotFound is returned when a record ID does not exist.
var ErrNotFound = errors.New("record not found")

// TestRecord is the durable artifact of one finished test. Readings hold the
// full, uncropped trace; CropStart/CropEnd only restrict which sub-range
// feeds analysis and display. Cropping never rewrites Readings.
type TestRecord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"timestamp"`
	Label     string    `json:"label"`

	// DurationMS spans the first to last reading of the full trace.
	DurationMS int64 `json:"duration_ms"`

	// Denormalized summary columns for cheap history listings.
	PeakThrust   float64 `json:"max_thrust"`
	AvgThrust    float64 `json:"avg_thrust"`
	TotalImpulse float64 `json:"total_impulse"`
	MotorClass   string  `json:"motor_class"`

	Readings []telemetry.Reading `gorm:"serializer:json" json:"readings,omitempty"`

	// Crop bounds in seconds relative to the first reading; nil means unset.
	CropStart *float64 `json:"crop_start"`
	CropEnd   *float64 `json:"crop_end"`

	Analysis *analysis.Result `gorm:"serializer:json" json:"analysis,omitempty"`
}

// TestSummary is the listing row: summary columns without the trace payload.
type TestSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"timestamp"`
	Label        string    `json:"label"`
	DurationMS   int64     `json:"duration_ms"`
	PeakThrust   float64   `json:"max_thrust"`
	AvgThrust    float64   `json:"avg_thrust"`
	TotalImpulse float64   `json:"total_impulse"`
	MotorClass   string    `json:"motor_class"`
}

// Calibration is the process-wide scale/offset pair computed on the stand
// and persisted here. The server consumes it; it never computes it.
type Calibration struct {
	ID        int       `gorm:"primaryKey" json:"-"`
	UpdatedAt time.Time `json:"timestamp"`
	Offset    int64     `json:"offset"`
	Scale     float64   `json:"scale"`
}

// Store persists test records and calibration in a sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %q: %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	if err := db.AutoMigrate(&TestRecord{}, &Calibration{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateTest inserts a finalized test record.
func (s *Store) CreateTest(rec *TestRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("store: create test: %w", err)
	}
	return nil
}

// GetTest returns the full record, trace included.
func (s *Store) GetTest(id string) (*TestRecord, error) {
	var rec TestRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get test %s: %w", id, err)
	}
	return &rec, nil
}

// ListTests returns up to limit summary rows, newest first.
func (s *Store) ListTests(limit int) ([]TestSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []TestSummary
	err := s.db.Model(&TestRecord{}).
		Select("id", "created_at", "label", "duration_ms",
			"peak_thrust", "avg_thrust", "total_impulse", "motor_class").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list tests: %w", err)
	}
	return out, nil
}

// DeleteTest removes a record. Deleting a missing ID returns ErrNotFound.
func (s *Store) DeleteTest(id string) error {
	res := s.db.Delete(&TestRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("store: delete test %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLabel renames a test.
func (s *Store) UpdateLabel(id, label string) error {
	res := s.db.Model(&TestRecord{}).Where("id = ?", id).Update("label", label)
	if res.Error != nil {
		return fmt.Errorf("store: update label %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAnalysis replaces the crop bounds, the analysis result and the
// denormalized summary columns in one write. Passing nil bounds clears the
// crop.
func (s *Store) UpdateAnalysis(id string, cropStart, cropEnd *float64, res *analysis.Result) error {
	// Struct update with an explicit Select so nil crop bounds are written,
	// and the Analysis field goes through the JSON serializer.
	r := s.db.Model(&TestRecord{ID: id}).
		Select("CropStart", "CropEnd", "Analysis",
			"PeakThrust", "AvgThrust", "TotalImpulse", "MotorClass").
		Updates(TestRecord{
			CropStart:    cropStart,
			CropEnd:      cropEnd,
			Analysis:     res,
			PeakThrust:   res.PeakThrustN,
			AvgThrust:    res.AvgThrustN,
			TotalImpulse: res.TotalImpulseNS,
			MotorClass:   res.MotorClass,
		})
	if r.Error != nil {
		return fmt.Errorf("store: update analysis %s: %w", id, r.Error)
	}
	if r.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveCalibration replaces the single calibration row.
func (s *Store) SaveCalibration(offset int64, scale float64) error {
	cal := Calibration{ID: 1, Offset: offset, Scale: scale, UpdatedAt: time.Now()}
	if err := s.db.Save(&cal).Error; err != nil {
		return fmt.Errorf("store: save calibration: %w", err)
	}
	return nil
}

// GetCalibration returns the current calibration, or an identity default
// when none has been stored yet.
func (s *Store) GetCalibration() (*Calibration, error) {
	var cal Calibration
	err := s.db.First(&cal, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Calibration{ID: 1, Scale: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get calibration: %w", err)
	}
	return &cal, nil
}
