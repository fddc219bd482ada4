// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port   string
	APIKey string
	DBPath string

	// Generation collaborator. An empty GeminiAPIKey disables generation;
	// the persona then answers from its template set only.
	GeminiAPIKey      string
	GeminiModel       string
	GenerationTimeout time.Duration

	// Detection tunables.
	ScamThreshold      float64
	AssistBand         float64
	HighScoreThreshold float64
	AssistEnabled      bool

	// Session lifecycle.
	SessionWindow time.Duration
	SweepInterval time.Duration

	// Callback collaborator. Empty URL disables reporting.
	CallbackURL     string
	CallbackTimeout time.Duration

	AllowedOrigins []string
	Dev            bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		APIKey:             getEnv("API_KEY", ""),
		DBPath:             getEnv("DB_PATH", "./data/scamtrap.db"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GenerationTimeout:  getEnvDuration("GENERATION_TIMEOUT", 15*time.Second),
		ScamThreshold:      getEnvFloat("SCAM_THRESHOLD", 0.5),
		AssistBand:         getEnvFloat("ASSIST_BAND", 0.15),
		HighScoreThreshold: getEnvFloat("HIGH_SCORE_THRESHOLD", 0.8),
		AssistEnabled:      getEnvBool("ASSIST_ENABLED", true),
		SessionWindow:      getEnvDuration("SESSION_INACTIVITY_WINDOW", 30*time.Minute),
		SweepInterval:      getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		CallbackURL:        getEnv("CALLBACK_URL", ""),
		CallbackTimeout:    getEnvDuration("CALLBACK_TIMEOUT", 10*time.Second),
		AllowedOrigins:     splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		Dev:                getEnvBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ScamThreshold <= 0 || c.ScamThreshold >= 1 {
		return fmt.Errorf("SCAM_THRESHOLD must be in (0,1), got %v", c.ScamThreshold)
	}
	if c.HighScoreThreshold < c.ScamThreshold || c.HighScoreThreshold > 1 {
		return fmt.Errorf("HIGH_SCORE_THRESHOLD must be in [SCAM_THRESHOLD,1], got %v", c.HighScoreThreshold)
	}
	if c.AssistBand < 0 || c.AssistBand >= 0.5 {
		return fmt.Errorf("ASSIST_BAND must be in [0,0.5), got %v", c.AssistBand)
	}
	if c.SessionWindow <= 0 {
		return fmt.Errorf("SESSION_INACTIVITY_WINDOW must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// GenerationEnabled reports whether a generation collaborator is configured.
func (c *Config) GenerationEnabled() bool {
	return c.GeminiAPIKey != ""
}

// ReportingEnabled reports whether the callback collaborator is configured.
func (c *Config) ReportingEnabled() bool {
	return c.CallbackURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
