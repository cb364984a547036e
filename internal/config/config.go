package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultDatabasePath = "data/tests.db"

	DefaultBurnThreshold      = 0.05
	DefaultSmoothingWindow    = 11
	DefaultSmoothingOrder     = 3
	DefaultBaselineDuration   = 0.5
	DefaultExpectedSampleRate = 80.0
	DefaultMinTestDuration    = 0.25
)

// Config is the full thrustbench-server configuration parsed from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds HTTP and storage settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, websocket endpoints and /metrics
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// DatabasePath is the sqlite file holding test records and calibration.
	DatabasePath string `yaml:"database_path"`
}

// MQTTConfig configures the optional MQTT ingest bridge. The bridge is
// disabled when Broker is empty; the stand's direct websocket link works
// either way.
type MQTTConfig struct {
	// Broker is the MQTT broker URL, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker"`

	// TopicPrefix is prepended to the readings and commands topics
	// (default "thrustbench").
	TopicPrefix string `yaml:"topic_prefix"`

	// ClientID is the MQTT client identifier (default "thrustbench-server").
	ClientID string `yaml:"client_id"`
}

// AnalysisConfig holds the tunable parameters of the thrust-curve analysis
// pipeline. This section is hot-reloadable via Watch.
type AnalysisConfig struct {
	// BurnThreshold is the fraction of peak thrust that defines the burn
	// window (default 0.05).
	BurnThreshold float64 `yaml:"burn_threshold"`

	// SmoothingWindow is the Savitzky-Golay window length in samples,
	// forced odd (default 11).
	SmoothingWindow int `yaml:"smoothing_window"`

	// SmoothingOrder is the Savitzky-Golay polynomial order (default 3).
	SmoothingOrder int `yaml:"smoothing_order"`

	// BaselineDuration is how many seconds of the window head are averaged
	// for the zero-offset estimate (default 0.5).
	BaselineDuration float64 `yaml:"baseline_duration"`

	// ExpectedSampleRate is the stand's nominal sample rate in Hz, used for
	// gap detection (default 80).
	ExpectedSampleRate float64 `yaml:"expected_sample_rate"`

	// MinTestDuration is the shortest analysis window, in seconds, that does
	// not draw a short-window warning (default 0.25).
	MinTestDuration float64 `yaml:"min_test_duration"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			DatabasePath: DefaultDatabasePath,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "thrustbench",
			ClientID:    "thrustbench-server",
		},
		Analysis: AnalysisConfig{
			BurnThreshold:      DefaultBurnThreshold,
			SmoothingWindow:    DefaultSmoothingWindow,
			SmoothingOrder:     DefaultSmoothingOrder,
			BaselineDuration:   DefaultBaselineDuration,
			ExpectedSampleRate: DefaultExpectedSampleRate,
			MinTestDuration:    DefaultMinTestDuration,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.DatabasePath == "" {
		return fmt.Errorf("server.database_path must not be empty")
	}
	a := cfg.Analysis
	if a.BurnThreshold <= 0 || a.BurnThreshold >= 1 {
		return fmt.Errorf("analysis.burn_threshold %g is out of range (0, 1)", a.BurnThreshold)
	}
	if a.SmoothingWindow < 1 {
		return fmt.Errorf("analysis.smoothing_window must be >= 1")
	}
	if a.SmoothingOrder < 1 {
		return fmt.Errorf("analysis.smoothing_order must be >= 1")
	}
	if a.BaselineDuration < 0 {
		return fmt.Errorf("analysis.baseline_duration must not be negative")
	}
	if a.ExpectedSampleRate <= 0 {
		return fmt.Errorf("analysis.expected_sample_rate must be positive")
	}
	if a.MinTestDuration < 0 {
		return fmt.Errorf("analysis.min_test_duration must not be negative")
	}
	return nil
}
