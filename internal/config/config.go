// Package config loads server settings from the environment, after
// reading a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/opensplit/internal/money"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all configuration for the server.
type Config struct {
	Port int

	DataBackend string
	DBPath      string
	DatabaseURL string

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration
	CacheSize    int

	// AMQPURL enables cross-instance cache invalidation when set.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	InstanceID   string

	// OCRURL enables ScanReceipt when set.
	OCRURL     string
	OCRTimeout time.Duration

	JWTSecret string
	Currency  string

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and then the environment. Malformed
// numbers and durations are reported; Validate checks the rest.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080, &errs),
		DataBackend:  strings.ToLower(getEnv("DATA_BACKEND", BackendSQLite)),
		DBPath:       getEnv("DB_PATH", "./data/opensplit.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTL:     getEnvAsDuration("CACHE_TTL", 5*time.Minute, &errs),
		CacheSize:    getEnvAsInt("CACHE_SIZE", 1000, &errs),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "opensplit.groups"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "opensplit.invalidate"),
		InstanceID:   getEnv("INSTANCE_ID", defaultInstanceID()),
		OCRURL:       getEnv("OCR_URL", ""),
		OCRTimeout:   getEnvAsDuration("OCR_TIMEOUT", 30*time.Second, &errs),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		Currency:     strings.ToUpper(getEnv("CURRENCY", money.DefaultCurrency)),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.DataBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATA_BACKEND must be %s or %s, got %q", BackendSQLite, BackendPostgres, c.DataBackend))
	}
	switch c.CacheBackend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory, redis or none, got %q", c.CacheBackend))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.CacheSize < 1 {
		errs = append(errs, errors.New("CACHE_SIZE must be at least 1"))
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("AMQP_EXCHANGE and AMQP_QUEUE are required with AMQP_URL"))
	}
	if c.OCRTimeout <= 0 {
		errs = append(errs, errors.New("OCR_TIMEOUT must be positive"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be a 3-letter code, got %q", c.Currency))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int, errs *[]error) int {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, s))
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, s))
		return fallback
	}
	return v
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "opensplit"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
