package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Parser  ParserConfig
	Advisor AdvisorConfig
	Cache   CacheConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	BodyLimitMB int
	StaticDir   string
}

// ParserConfig holds the defaults applied when a request leaves a field out.
type ParserConfig struct {
	CurrencyTag   string
	DefaultVendor string
	DiscountPct   float64
	VATPct        float64
	Workers       int
}

// AdvisorConfig points the optional summarizer at an OpenAI-compatible endpoint.
type AdvisorConfig struct {
	Enabled           bool
	BaseURL           string
	APIKey            string
	Model             string
	MaxTokens         int
	RequestsPerMinute int
	SampleSize        int
	Timeout           time.Duration
}

type CacheConfig struct {
	TTL       time.Duration
	SweepSpec string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables, after loading any
// .env files given (or ".env" in the working directory when none are).
// Missing .env files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			BodyLimitMB: getEnvAsInt("SERVER_BODY_LIMIT_MB", 32),
			StaticDir:   getEnv("SERVER_STATIC_DIR", ""),
		},
		Parser: ParserConfig{
			CurrencyTag:   getEnv("PARSER_CURRENCY_TAG", "SR"),
			DefaultVendor: getEnv("PARSER_DEFAULT_VENDOR", ""),
			DiscountPct:   getEnvAsFloat("PARSER_DISCOUNT_PCT", 0),
			VATPct:        getEnvAsFloat("PARSER_VAT_PCT", 0),
			Workers:       getEnvAsInt("PARSER_WORKERS", 4),
		},
		Advisor: AdvisorConfig{
			Enabled:           getEnvAsBool("ADVISOR_ENABLED", false),
			BaseURL:           getEnv("ADVISOR_BASE_URL", "https://router.huggingface.co/v1"),
			APIKey:            getEnv("ADVISOR_API_KEY", ""),
			Model:             getEnv("ADVISOR_MODEL", "meta-llama/Llama-3.1-8B-Instruct"),
			MaxTokens:         getEnvAsInt("ADVISOR_MAX_TOKENS", 2048),
			RequestsPerMinute: getEnvAsInt("ADVISOR_REQUESTS_PER_MINUTE", 30),
			SampleSize:        getEnvAsInt("ADVISOR_SAMPLE_SIZE", 20),
			Timeout:           getEnvAsDuration("ADVISOR_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			TTL:       getEnvAsDuration("CACHE_TTL", time.Hour),
			SweepSpec: getEnv("CACHE_SWEEP_SPEC", "@every 5m"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
	}

	if cfg.Advisor.Enabled && cfg.Advisor.APIKey == "" {
		return nil, errors.New("ADVISOR_API_KEY is required when ADVISOR_ENABLED is set")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT out of range: %d", cfg.Server.Port)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
