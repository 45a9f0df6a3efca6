// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every component constructor.
type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	LLM   LLMConfig
	Probe ProbeConfig

	ToolServerURL   string
	ProofsDir       string
	ResultCacheSize int
}

// LLMConfig describes the OpenAI-compatible model backend.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	OCRModel    string
	Temperature float64
	MaxTokens   int
}

// ProbeConfig bounds a single probe session.
type ProbeConfig struct {
	MaxSteps           int
	CallTimeout        time.Duration
	Concurrency        int
	OCRMaxChars        int
	DOMMaxChars        int
	ToolResultMaxChars int
	WellnessEnabled    bool
}

// SessionTimeout is an upper bound for one whole session: every step may
// spend one model call and one tool call, plus OCR and the wellness report.
func (p ProbeConfig) SessionTimeout() time.Duration {
	return time.Duration(2*p.MaxSteps+3) * p.CallTimeout
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
func FromEnv() (*Config, error) {
	model := getEnv("LLM_MODEL", "hermes-2-pro-mistral-7b")
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", true),
		LLM: LLMConfig{
			BaseURL:     strings.TrimRight(getEnv("LLM_BASE_URL", "http://localhost:4000/v1"), "/"),
			APIKey:      getEnv("LLM_API_KEY", "sk-1234"),
			Model:       model,
			OCRModel:    getEnv("OCR_MODEL", model),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		},
		Probe: ProbeConfig{
			MaxSteps:           getEnvInt("MAX_STEPS", 8),
			CallTimeout:        getEnvDuration("CALL_TIMEOUT", 60*time.Second),
			Concurrency:        getEnvInt("PROBE_CONCURRENCY", 1),
			OCRMaxChars:        getEnvInt("OCR_MAX_CHARS", 2000),
			DOMMaxChars:        getEnvInt("DOM_MAX_CHARS", 4000),
			ToolResultMaxChars: getEnvInt("TOOL_RESULT_MAX_CHARS", 2000),
			WellnessEnabled:    getEnvBool("WELLNESS_ENABLED", true),
		},
		ToolServerURL:   strings.TrimRight(getEnv("TOOL_SERVER_URL", "http://localhost:8081"), "/"),
		ProofsDir:       getEnv("PROOFS_DIR", "./volumes/proofs"),
		ResultCacheSize: getEnvInt("RESULT_CACHE_SIZE", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.ToolServerURL == "" {
		return fmt.Errorf("TOOL_SERVER_URL cannot be empty")
	}
	if c.ProofsDir == "" {
		return fmt.Errorf("PROOFS_DIR cannot be empty")
	}
	if c.Probe.MaxSteps <= 0 {
		return fmt.Errorf("MAX_STEPS must be > 0")
	}
	if c.Probe.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be > 0")
	}
	if c.Probe.Concurrency <= 0 {
		return fmt.Errorf("PROBE_CONCURRENCY must be > 0")
	}
	if c.Probe.OCRMaxChars <= 0 || c.Probe.DOMMaxChars <= 0 || c.Probe.ToolResultMaxChars <= 0 {
		return fmt.Errorf("OCR_MAX_CHARS, DOM_MAX_CHARS and TOOL_RESULT_MAX_CHARS must be > 0")
	}
	if c.ResultCacheSize <= 0 {
		return fmt.Errorf("RESULT_CACHE_SIZE must be > 0")
	}
	return nil
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

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
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

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
