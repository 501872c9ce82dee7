package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/docparse/constants"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Image     ImageConfig     `yaml:"image"`
	Admission AdmissionConfig `yaml:"admission"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	GRPCAddr       string   `yaml:"grpc_addr"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	CORSOrigins    []string `yaml:"cors_origins"`
	// HealthInterval is how often the gRPC health status is refreshed from the backend.
	HealthInterval  time.Duration `yaml:"health_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig holds vision model backend configuration
type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
	Temperature   float32       `yaml:"temperature"`
	NumPredict    int           `yaml:"num_predict"`
	NumCtx        int           `yaml:"num_ctx"`
	TopP          float32       `yaml:"top_p"`
}

// ImageConfig holds image normalization configuration
type ImageConfig struct {
	MaxDimension int      `yaml:"max_dimension"`
	DPI          int      `yaml:"dpi"`
	Encoding     string   `yaml:"encoding"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// AdmissionConfig bounds how much work the service accepts at once.
type AdmissionConfig struct {
	MaxConcurrent   int64         `yaml:"max_concurrent"`
	QueueWait       time.Duration `yaml:"queue_wait"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCAddr:        ":9090",
			MaxUploadBytes:  10 << 20,
			CORSOrigins:     []string{"*"},
			HealthInterval:  30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "qwen2.5vl:latest",
			Timeout:       180 * time.Second,
			HealthTimeout: 5 * time.Second,
			Temperature:   0.1,
			NumPredict:    2000,
			NumCtx:        8192,
			TopP:          0.9,
		},
		Image: ImageConfig{
			MaxDimension: 768,
			DPI:          150,
			Encoding:     "png",
			AllowedTypes: append([]string(nil), constants.AllowedContentTypes...),
		},
		Admission: AdmissionConfig{
			MaxConcurrent:   2,
			QueueWait:       30 * time.Second,
			RatePerMinute:   60,
			Burst:           10,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (env wins). A .env file in
// the working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, WrapError(err, "load .env")
	}

	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	// PORT is what most hosting platforms set; HTTP_ADDR is more specific.
	if port := os.Getenv("PORT"); port != "" {
		c.Server.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	}
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	c.Server.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Server.HealthInterval = getEnvAsDuration("HEALTH_INTERVAL", c.Server.HealthInterval)

	c.Backend.BaseURL = strings.TrimRight(getEnv("OLLAMA_HOST", c.Backend.BaseURL), "/")
	c.Backend.Model = getEnv("MODEL_NAME", c.Backend.Model)
	c.Backend.Timeout = getEnvAsDuration("OLLAMA_TIMEOUT", c.Backend.Timeout)
	c.Backend.Temperature = getEnvAsFloat32("OLLAMA_TEMPERATURE", c.Backend.Temperature)

	c.Image.MaxDimension = getEnvAsInt("MAX_IMAGE_SIZE", c.Image.MaxDimension)
	c.Image.DPI = getEnvAsInt("IMAGE_DPI", c.Image.DPI)
	c.Image.Encoding = strings.ToLower(getEnv("IMAGE_ENCODING", c.Image.Encoding))

	c.Admission.MaxConcurrent = getEnvAsInt64("MAX_CONCURRENT", c.Admission.MaxConcurrent)
	c.Admission.RatePerMinute = getEnvAsInt("RATE_PER_MINUTE", c.Admission.RatePerMinute)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("server.http_addr", c.Server.HTTPAddr, Required).
		Field("backend.base_url", c.Backend.BaseURL, Required, HTTPURL).
		Field("backend.model", c.Backend.Model, Required).
		Field("backend.timeout", c.Backend.Timeout, PositiveDuration).
		Field("image.max_dimension", c.Image.MaxDimension, Positive).
		Field("image.dpi", c.Image.DPI, Positive).
		Field("image.encoding", c.Image.Encoding, OneOf("png", "jpeg")).
		Field("admission.max_concurrent", int(c.Admission.MaxConcurrent), Positive).
		Field("log.level", c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field("log.format", c.Log.Format, OneOf("json", "text"))
	if len(c.Image.AllowedTypes) == 0 {
		v.Field("image.allowed_types", nil, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
