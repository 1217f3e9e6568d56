// Package config provides configuration management for medguardian.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults for the decision engine. The per-frame accept threshold and the
// stability positive threshold are deliberately independent gates; both must
// pass before a session is accepted.
const (
	DefaultWorkerPort        = 8750
	DefaultSessionWindow     = 60 * time.Second
	DefaultFeedbackInterval  = 15 * time.Second
	DefaultAcceptThreshold   = 0.75
	DefaultPositiveThreshold = 0.6
	DefaultAcceptStreak      = 3
	DefaultStabilityCapacity = 5
	DefaultStabilityMajority = 3
	DefaultFailedRetention   = 10 * time.Minute
	DefaultCleanupInterval   = 1 * time.Minute
)

// Config holds all runtime configuration for the verification engine.
type Config struct {
	// HTTP API
	WorkerPort int

	// Session lifecycle
	SessionWindow    time.Duration
	FeedbackInterval time.Duration
	FailedRetention  time.Duration
	CleanupInterval  time.Duration

	// Decision thresholds
	AcceptThreshold   float64
	PositiveThreshold float64
	AcceptStreak      int
	StabilityCapacity int
	StabilityMajority int

	// CV sidecar (runs the detection/matching models)
	CVServiceURL string
	CVTimeout    time.Duration

	// Reference data
	RegistryPath string

	// Audit store
	DBPath   string
	MaxConns int

	// MQTT notifier (disabled when broker is empty)
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkerPort:        DefaultWorkerPort,
		SessionWindow:     DefaultSessionWindow,
		FeedbackInterval:  DefaultFeedbackInterval,
		FailedRetention:   DefaultFailedRetention,
		CleanupInterval:   DefaultCleanupInterval,
		AcceptThreshold:   DefaultAcceptThreshold,
		PositiveThreshold: DefaultPositiveThreshold,
		AcceptStreak:      DefaultAcceptStreak,
		StabilityCapacity: DefaultStabilityCapacity,
		StabilityMajority: DefaultStabilityMajority,
		CVServiceURL:      "http://localhost:8751",
		CVTimeout:         5 * time.Second,
		RegistryPath:      "medications.yaml",
		DBPath:            "medguardian.db",
		MaxConns:          4,
		MQTTClientID:      "medguardian-verifier",
		MQTTTopicPrefix:   "medguardian/verification",
	}
}

// Load reads configuration from the environment on top of defaults.
// A .env file in the working directory is honored if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.WorkerPort = getEnvInt("MEDGUARDIAN_PORT", cfg.WorkerPort)
	cfg.SessionWindow = getEnvDuration("MEDGUARDIAN_SESSION_WINDOW", cfg.SessionWindow)
	cfg.FeedbackInterval = getEnvDuration("MEDGUARDIAN_FEEDBACK_INTERVAL", cfg.FeedbackInterval)
	cfg.FailedRetention = getEnvDuration("MEDGUARDIAN_FAILED_RETENTION", cfg.FailedRetention)
	cfg.CleanupInterval = getEnvDuration("MEDGUARDIAN_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.AcceptThreshold = getEnvFloat("MEDGUARDIAN_ACCEPT_THRESHOLD", cfg.AcceptThreshold)
	cfg.PositiveThreshold = getEnvFloat("MEDGUARDIAN_POSITIVE_THRESHOLD", cfg.PositiveThreshold)
	cfg.AcceptStreak = getEnvInt("MEDGUARDIAN_ACCEPT_STREAK", cfg.AcceptStreak)
	cfg.StabilityCapacity = getEnvInt("MEDGUARDIAN_STABILITY_CAPACITY", cfg.StabilityCapacity)
	cfg.StabilityMajority = getEnvInt("MEDGUARDIAN_STABILITY_MAJORITY", cfg.StabilityMajority)
	cfg.CVServiceURL = getEnv("MEDGUARDIAN_CV_URL", cfg.CVServiceURL)
	cfg.CVTimeout = getEnvDuration("MEDGUARDIAN_CV_TIMEOUT", cfg.CVTimeout)
	cfg.RegistryPath = getEnv("MEDGUARDIAN_REGISTRY", cfg.RegistryPath)
	cfg.DBPath = getEnv("MEDGUARDIAN_DB", cfg.DBPath)
	cfg.MaxConns = getEnvInt("MEDGUARDIAN_DB_MAX_CONNS", cfg.MaxConns)
	cfg.MQTTBroker = getEnv("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.MQTTUsername = getEnv("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.MQTTTopicPrefix)
	return cfg
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid float in environment, using default")
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration in environment, using default")
		return defaultValue
	}
	return d
}
