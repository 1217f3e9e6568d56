// Package config provides configuration management for medguardian.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	saved map[string]string
}

var configEnvKeys = []string{
	"MEDGUARDIAN_PORT",
	"MEDGUARDIAN_SESSION_WINDOW",
	"MEDGUARDIAN_ACCEPT_THRESHOLD",
	"MEDGUARDIAN_POSITIVE_THRESHOLD",
	"MEDGUARDIAN_STABILITY_CAPACITY",
	"MEDGUARDIAN_REGISTRY",
	"MEDGUARDIAN_CV_URL",
	"MQTT_BROKER",
}

func (s *ConfigSuite) SetupTest() {
	s.saved = make(map[string]string)
	for _, key := range configEnvKeys {
		s.saved[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
}

func (s *ConfigSuite) TearDownTest() {
	for key, val := range s.saved {
		if val == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, val)
		}
	}
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
	s.Equal(60*time.Second, cfg.SessionWindow)
	s.Equal(15*time.Second, cfg.FeedbackInterval)
	s.Equal(0.75, cfg.AcceptThreshold)
	s.Equal(0.6, cfg.PositiveThreshold)
	s.Equal(3, cfg.AcceptStreak)
	s.Equal(5, cfg.StabilityCapacity)
	s.Equal(3, cfg.StabilityMajority)
	s.Equal(4, cfg.MaxConns)
	s.Empty(cfg.MQTTBroker)
}

// TestThresholdsAreIndependent verifies the accept and positive thresholds
// stay separate knobs rather than collapsing into one.
func (s *ConfigSuite) TestThresholdsAreIndependent() {
	os.Setenv("MEDGUARDIAN_ACCEPT_THRESHOLD", "0.9")

	cfg := Load()
	s.Equal(0.9, cfg.AcceptThreshold)
	s.Equal(DefaultPositiveThreshold, cfg.PositiveThreshold)
}

// TestLoad_TableDriven tests environment overrides.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		check func(cfg *Config)
		name  string
		key   string
		value string
	}{
		{
			name: "port_override", key: "MEDGUARDIAN_PORT", value: "9000",
			check: func(cfg *Config) { s.Equal(9000, cfg.WorkerPort) },
		},
		{
			name: "window_override", key: "MEDGUARDIAN_SESSION_WINDOW", value: "90s",
			check: func(cfg *Config) { s.Equal(90*time.Second, cfg.SessionWindow) },
		},
		{
			name: "capacity_override", key: "MEDGUARDIAN_STABILITY_CAPACITY", value: "7",
			check: func(cfg *Config) { s.Equal(7, cfg.StabilityCapacity) },
		},
		{
			name: "invalid_int_falls_back", key: "MEDGUARDIAN_PORT", value: "not-a-port",
			check: func(cfg *Config) { s.Equal(DefaultWorkerPort, cfg.WorkerPort) },
		},
		{
			name: "invalid_duration_falls_back", key: "MEDGUARDIAN_SESSION_WINDOW", value: "soon",
			check: func(cfg *Config) { s.Equal(DefaultSessionWindow, cfg.SessionWindow) },
		},
		{
			name: "broker_override", key: "MQTT_BROKER", value: "broker:1883",
			check: func(cfg *Config) { s.Equal("broker:1883", cfg.MQTTBroker) },
		},
		{
			name: "cv_url_override", key: "MEDGUARDIAN_CV_URL", value: "http://cv:9000",
			check: func(cfg *Config) { s.Equal("http://cv:9000", cfg.CVServiceURL) },
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			os.Setenv(tt.key, tt.value)
			defer os.Unsetenv(tt.key)
			tt.check(Load())
		})
	}
}

// TestGetEnvFloat tests float parsing from environment.
func TestGetEnvFloat(t *testing.T) {
	os.Setenv("MEDGUARDIAN_TEST_FLOAT", "0.42")
	defer os.Unsetenv("MEDGUARDIAN_TEST_FLOAT")

	assert.Equal(t, 0.42, getEnvFloat("MEDGUARDIAN_TEST_FLOAT", 0.1))
	assert.Equal(t, 0.1, getEnvFloat("MEDGUARDIAN_TEST_FLOAT_MISSING", 0.1))
}
