// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Defaults for the Groq chat completion endpoint.
const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama2-70b-4096"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string
}

// ConfigurationError reports a missing or invalid configuration value.
// It is fatal at startup; no remote call may be attempted without a valid key.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Key, e.Reason)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/usermanpro.db"),
		GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
		GroqModel:   getEnv("GROQ_MODEL", DefaultGroqModel),
		GroqBaseURL: getEnv("GROQ_BASE_URL", DefaultGroqBaseURL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return &ConfigurationError{Key: "PORT", Reason: "cannot be empty"}
	}
	if c.DBPath == "" {
		return &ConfigurationError{Key: "DB_PATH", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.GroqAPIKey) == "" {
		return &ConfigurationError{Key: "GROQ_API_KEY", Reason: "environment variable is not set"}
	}
	if c.GroqModel == "" {
		return &ConfigurationError{Key: "GROQ_MODEL", Reason: "cannot be empty"}
	}
	if c.GroqBaseURL == "" {
		return &ConfigurationError{Key: "GROQ_BASE_URL", Reason: "cannot be empty"}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
