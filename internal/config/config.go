package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the chat client and the development server.
type Config struct {
	APIURL             string        `validate:"required,url"`
	WSURL              string        `validate:"required,url"`
	TypingExpiry       time.Duration `validate:"gt=0"`
	ReconnectAttempts  int           `validate:"gte=0"`
	ReconnectDelay     time.Duration `validate:"gte=0"`
	HTTPTimeout        time.Duration `validate:"gt=0"`
	Language           string        `validate:"required"`
	Timezone           string        `validate:"omitempty"`
	ServerAddr         string        `validate:"required"`
	FixturesPath       string        `validate:"omitempty"`
	ServerHistoryLimit int           `validate:"gt=0"`
	RateLimit          float64       `validate:"gte=0"`
	TracingEnabled     bool
	TracingServiceName string `validate:"required"`
	ZipkinURL          string `validate:"omitempty,url"`
	LogFormat          string `validate:"omitempty,oneof=text json"`
	LogLevel           string `validate:"omitempty,oneof=debug info warn warning error"`

	location *time.Location
}

// Defaults used when an environment variable is unset.
const (
	DefaultAPIURL             = "http://localhost:8080/api"
	DefaultWSURL              = "ws://localhost:8080/ws"
	DefaultTypingExpiry       = 3 * time.Second
	DefaultReconnectAttempts  = 5
	DefaultReconnectDelay     = time.Second
	DefaultHTTPTimeout        = 10 * time.Second
	DefaultLanguage           = "en"
	DefaultServerAddr         = ":8080"
	DefaultServerHistoryLimit = 200
	DefaultRateLimit          = 20
	DefaultTracingService     = "classroom-chat"
	DefaultZipkinURL          = "http://localhost:9411/api/v2/spans"
)

// New loads configuration from the .env file (if any) and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		APIURL:       stringOr(getenv("CHAT_API_URL"), DefaultAPIURL),
		WSURL:        stringOr(getenv("CHAT_WS_URL"), DefaultWSURL),
		Language:     stringOr(getenv("CHAT_LANG"), DefaultLanguage),
		Timezone:     getenv("CHAT_TIMEZONE"),
		ServerAddr:   stringOr(getenv("SERVER_ADDR"), DefaultServerAddr),
		FixturesPath: getenv("SERVER_FIXTURES"),
		LogFormat:    getenv("LOG_FORMAT"),
		LogLevel:     getenv("LOG_LEVEL"),

		TracingServiceName: stringOr(getenv("PUBSUB_TRACING_SERVICE_NAME"), DefaultTracingService),
		ZipkinURL:          stringOr(getenv("PUBSUB_TRACING_ZIPKIN_URL"), DefaultZipkinURL),
	}

	var err error
	if cfg.TypingExpiry, err = durationOr(getenv, "CHAT_TYPING_EXPIRY", DefaultTypingExpiry); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = durationOr(getenv, "CHAT_RECONNECT_DELAY", DefaultReconnectDelay); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationOr(getenv, "CHAT_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectAttempts, err = intOr(getenv, "CHAT_RECONNECT_ATTEMPTS", DefaultReconnectAttempts); err != nil {
		return nil, err
	}
	if cfg.ServerHistoryLimit, err = intOr(getenv, "SERVER_HISTORY_LIMIT", DefaultServerHistoryLimit); err != nil {
		return nil, err
	}

	if cfg.RateLimit, err = floatOr(getenv, "SERVER_RATE_LIMIT", DefaultRateLimit); err != nil {
		return nil, err
	}
	if raw := getenv("PUBSUB_TRACING_ENABLED"); raw != "" {
		if cfg.TracingEnabled, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("parse PUBSUB_TRACING_ENABLED: %w", err)
		}
	}

	if cfg.Timezone != "" {
		if cfg.location, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("parse CHAT_TIMEZONE: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Location returns the configured timezone, or the local zone when none is set.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func durationOr(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intOr(getenv func(string) string, key string, fallback int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func floatOr(getenv func(string) string, key string, fallback float64) (float64, error) {
	raw := getenv(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
