package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"docscan/internal/logger"
)

type Config struct {
	// Microblink BlinkID Cloud (ID-specialized recognizer)
	MicroblinkAPIKey    string
	MicroblinkAPISecret string
	MicroblinkBaseURL   string

	// Google Cloud credentials shared by Vision and Document AI
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	GoogleVisionAPIKey    string

	// Document AI identity processor (ID-specialized recognizer)
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIIDProcessorID    string
	DocumentAIProcessorVersion string

	// Tesseract (offline recognizer)
	TesseractEnabled  bool
	TesseractDataPath string

	// Pipeline tuning
	QualityGate    int
	MaxRetries     int
	RetryDelay     time.Duration
	RetryBackoff   float64
	BackendTimeout time.Duration

	// HTTP API
	ServerHost           string
	ServerPort           int
	ServerRateLimitRPS   float64
	ServerRateLimitBurst int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// BackendFlags is the read-only availability view the orchestrator consumes.
// A missing key disables only its backend.
type BackendFlags struct {
	Microblink   bool
	DocumentAI   bool
	GoogleVision bool
	Tesseract    bool
}

func Load() (*Config, error) {
	qualityGate, err := getEnvInt("OCR_QUALITY_GATE", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_QUALITY_GATE: %w", err)
	}
	maxRetries, err := getEnvInt("OCR_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_MAX_RETRIES: %w", err)
	}
	retryDelayMS, err := getEnvInt("OCR_RETRY_DELAY_MS", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_RETRY_DELAY_MS: %w", err)
	}
	retryBackoff, err := getEnvFloat("OCR_RETRY_BACKOFF", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_RETRY_BACKOFF: %w", err)
	}
	backendTimeout, err := getEnvDuration("OCR_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_BACKEND_TIMEOUT: %w", err)
	}
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	rps, err := getEnvFloat("SERVER_RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT_RPS: %w", err)
	}
	burst, err := getEnvInt("SERVER_RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT_BURST: %w", err)
	}
	tesseractEnabled, err := getEnvBool("TESSERACT_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid TESSERACT_ENABLED: %w", err)
	}

	config := &Config{
		MicroblinkAPIKey:           getEnv("MICROBLINK_API_KEY", ""),
		MicroblinkAPISecret:        getEnv("MICROBLINK_API_SECRET", ""),
		MicroblinkBaseURL:          getEnv("MICROBLINK_BASE_URL", "https://api.microblink.com/v1"),
		GoogleCredentialsFile:      getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON:      getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleVisionAPIKey:         getEnv("GOOGLE_VISION_API_KEY", ""),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIIDProcessorID:    getEnv("DOCUMENT_AI_ID_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		TesseractEnabled:           tesseractEnabled,
		TesseractDataPath:          getEnv("TESSDATA_PREFIX", ""),
		QualityGate:                qualityGate,
		MaxRetries:                 maxRetries,
		RetryDelay:                 time.Duration(retryDelayMS) * time.Millisecond,
		RetryBackoff:               retryBackoff,
		BackendTimeout:             backendTimeout,
		ServerHost:                 getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:                 port,
		ServerRateLimitRPS:         rps,
		ServerRateLimitBurst:       burst,
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration Load would produce from an empty
// environment.
func Default() *Config {
	return &Config{
		MicroblinkBaseURL:    "https://api.microblink.com/v1",
		GoogleCloudLocation:  "us",
		TesseractEnabled:     true,
		QualityGate:          50,
		MaxRetries:           3,
		RetryDelay:           time.Second,
		RetryBackoff:         2,
		BackendTimeout:       30 * time.Second,
		ServerHost:           "0.0.0.0",
		ServerPort:           8080,
		ServerRateLimitRPS:   5,
		ServerRateLimitBurst: 10,
		LogLevel:             "info",
		LogFormat:            "console",
		LogTimeFormat:        time.RFC3339,
		LogOutput:            "stderr",
	}
}

func (c *Config) validate() error {
	if c.QualityGate < 0 || c.QualityGate > 100 {
		return fmt.Errorf("OCR_QUALITY_GATE must be between 0 and 100, got %d", c.QualityGate)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("OCR_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("OCR_RETRY_DELAY_MS must not be negative")
	}
	if c.RetryBackoff < 1 {
		return fmt.Errorf("OCR_RETRY_BACKOFF must be at least 1, got %g", c.RetryBackoff)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.ServerRateLimitRPS <= 0 || c.ServerRateLimitBurst <= 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT_RPS and SERVER_RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// Backends derives backend availability from the configured credentials
func (c *Config) Backends() BackendFlags {
	hasGoogleCreds := c.GoogleCredentialsFile != "" || c.GoogleCredentialsJSON != ""
	return BackendFlags{
		Microblink:   c.MicroblinkAPIKey != "" && c.MicroblinkAPISecret != "",
		DocumentAI:   hasGoogleCreds && c.GoogleCloudProject != "" && c.DocumentAIIDProcessorID != "",
		GoogleVision: hasGoogleCreds || c.GoogleVisionAPIKey != "",
		Tesseract:    c.TesseractEnabled,
	}
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(strings.TrimSpace(value))
}
