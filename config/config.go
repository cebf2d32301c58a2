package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backends selectable through QUEUE_BACKEND.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	ServerPort      int           `json:"server_port"`
	LogLevel        string        `json:"log_level"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Version         string        `json:"version"`

	// Inference backend
	BackendURL   string `json:"backend_url"`   // OpenAI-compatible server base URL
	DefaultModel string `json:"default_model"` // Model used when requests omit one

	// Scheduler
	PollInterval    time.Duration `json:"poll_interval"`    // Pending-task sweep cadence
	ErrorBackoff    time.Duration `json:"error_backoff"`    // Sleep after a loop error
	CleanupInterval time.Duration `json:"cleanup_interval"` // Reclamation cadence
	TaskMaxAge      time.Duration `json:"task_max_age"`     // Record age before eviction
	DrainTimeout    time.Duration `json:"drain_timeout"`    // In-flight wait on shutdown

	// Queue
	QueueBackend  string `json:"queue_backend"`  // memory or redis
	QueueCapacity int    `json:"queue_capacity"` // Bounded capacity (memory backend)
	RedisURL      string `json:"redis_url"`
	QueueName     string `json:"queue_name"` // Redis list key
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:      getEnvInt("PORT", 8080),
		LogLevel:        getEnvString("LOG_LEVEL", "INFO"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Version:         getEnvString("VERSION", "1.0.0"),

		BackendURL:   getEnvString("BACKEND_URL", "http://localhost:8000"),
		DefaultModel: getEnvString("DEFAULT_MODEL", "default"),

		PollInterval:    getEnvDuration("POLL_INTERVAL", 100*time.Millisecond),
		ErrorBackoff:    getEnvDuration("ERROR_BACKOFF", time.Second),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		TaskMaxAge:      getEnvDuration("TASK_MAX_AGE", 48*time.Hour),
		DrainTimeout:    getEnvDuration("DRAIN_TIMEOUT", 30*time.Second),

		QueueBackend:  getEnvString("QUEUE_BACKEND", QueueBackendMemory),
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 1024),
		RedisURL:      getEnvString("REDIS_URL", "redis://localhost:6379"),
		QueueName:     getEnvString("QUEUE_NAME", "tasks"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// validate performs basic validation of the configuration
func (c *Config) validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d: must be between 1 and 65535", c.ServerPort)
	}

	validLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
	}
	upperLevel := strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if !validLevels[upperLevel] {
		return fmt.Errorf("invalid log level '%s': must be DEBUG, INFO, WARN, or ERROR", c.LogLevel)
	}
	c.LogLevel = upperLevel

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout)
	}
	if c.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("invalid shutdown timeout %v: must not exceed 5 minutes", c.ShutdownTimeout)
	}

	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version cannot be empty")
	}
	c.Version = strings.TrimSpace(c.Version)

	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("backend URL cannot be empty")
	}
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")

	if strings.TrimSpace(c.DefaultModel) == "" {
		return fmt.Errorf("default model cannot be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %v: must be positive", c.PollInterval)
	}
	if c.ErrorBackoff <= 0 {
		return fmt.Errorf("invalid error backoff %v: must be positive", c.ErrorBackoff)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("invalid cleanup interval %v: must be positive", c.CleanupInterval)
	}
	if c.TaskMaxAge <= 0 {
		return fmt.Errorf("invalid task max age %v: must be positive", c.TaskMaxAge)
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("invalid drain timeout %v: must be positive", c.DrainTimeout)
	}

	switch c.QueueBackend {
	case QueueBackendMemory:
		if c.QueueCapacity < 1 {
			return fmt.Errorf("invalid queue capacity %d: must be at least 1", c.QueueCapacity)
		}
	case QueueBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("redis URL cannot be empty when queue backend is redis")
		}
		if strings.TrimSpace(c.QueueName) == "" {
			return fmt.Errorf("queue name cannot be empty when queue backend is redis")
		}
	default:
		return fmt.Errorf("invalid queue backend '%s': must be %s or %s", c.QueueBackend, QueueBackendMemory, QueueBackendRedis)
	}

	return nil
}
