package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/anime-shed/microscan-go/internal/fusion"
)

// Config is the process configuration, read from the environment
type Config struct {
	Host               string        `validate:"required"`
	Port               string        `validate:"required"`
	RequestTimeout     time.Duration `validate:"gt=0"`
	MaxRequestBodySize int64         `validate:"gt=0"`
	LogLevel           string        `validate:"omitempty,oneof=debug info warn error"`

	Assessor  AssessorConfig
	Embedding EmbeddingConfig
	Weights   fusion.Weights

	CORSAllowedOrigins []string
	RateLimitRPS       float64 `validate:"gte=0"`
	RateLimitBurst     int     `validate:"gte=0"`

	// ScoringBaseURL is where callers (the scan CLI) send analysis requests
	ScoringBaseURL string `validate:"required,url"`
}

// AssessorConfig selects and configures the qualitative assessor
type AssessorConfig struct {
	Provider string        `validate:"oneof=none openai"`
	BaseURL  string        `validate:"omitempty,url"`
	APIKey   string
	Model    string
	Timeout  time.Duration `validate:"gt=0"`
}

// EmbeddingConfig selects and configures the embedding model
type EmbeddingConfig struct {
	Provider string `validate:"oneof=none descriptor remote"`
	BaseURL  string `validate:"omitempty,url"`
	Model    string
	APIKey   string
}

// weightsFile is the TOML layout of FUSION_WEIGHTS_FILE
type weightsFile struct {
	Fusion fusion.Weights `toml:"fusion"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads a .env file when present, then the environment
func LoadFromEnv() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	defaults := fusion.DefaultWeights()
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		LogLevel:           strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Assessor: AssessorConfig{
			Provider: strings.ToLower(getEnvOrDefault("ASSESSOR_PROVIDER", "none")),
			BaseURL:  os.Getenv("ASSESSOR_BASE_URL"),
			APIKey:   os.Getenv("ASSESSOR_API_KEY"),
			Model:    os.Getenv("ASSESSOR_MODEL"),
			Timeout:  parseDurationOrDefault("ASSESSOR_TIMEOUT", 20*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider: strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", "descriptor")),
			BaseURL:  os.Getenv("EMBEDDING_BASE_URL"),
			Model:    os.Getenv("EMBEDDING_MODEL"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
		},
		Weights: fusion.Weights{
			Turbidity: parseFloatOrDefault("TURBIDITY_WEIGHT", defaults.Turbidity),
			Edge:      parseFloatOrDefault("EDGE_WEIGHT", defaults.Edge),
			Expert:    parseFloatOrDefault("EXPERT_WEIGHT", defaults.Expert),
		},
		CORSAllowedOrigins: parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       parseFloatOrDefault("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     int(parseIntOrDefault("RATE_LIMIT_BURST", 10)),
		ScoringBaseURL:     getEnvOrDefault("SCORING_BASE_URL", "http://localhost:8080"),
	}

	if path := strings.TrimSpace(os.Getenv("FUSION_WEIGHTS_FILE")); path != "" {
		weights, err := LoadWeightsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Weights = weights
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, the port range, timeouts and the fusion weights
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid CORS origin %q: must be * or start with http:// or https://", origin)
		}
	}
	if c.Assessor.Timeout >= c.RequestTimeout {
		return fmt.Errorf("ASSESSOR_TIMEOUT (%s) must be shorter than REQUEST_TIMEOUT (%s)", c.Assessor.Timeout, c.RequestTimeout)
	}
	if c.Embedding.Provider == "remote" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("EMBEDDING_BASE_URL is required for the remote embedding provider")
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid fusion weights: %w", err)
	}
	return nil
}

// LoadWeightsFile reads fusion weights from a TOML file with a [fusion] table
func LoadWeightsFile(path string) (fusion.Weights, error) {
	file := weightsFile{Fusion: fusion.DefaultWeights()}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fusion.Weights{}, fmt.Errorf("failed to read fusion weights from %s: %w", path, err)
	}
	if err := file.Fusion.Validate(); err != nil {
		return fusion.Weights{}, fmt.Errorf("invalid fusion weights in %s: %w", path, err)
	}
	return file.Fusion, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
