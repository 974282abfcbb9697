package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is wrapped by every error Load returns.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sink modes.
const (
	SinkPrint   = "print"
	SinkPersist = "persist"
	SinkKafka   = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	PriceURL   string `env:"URL_PRICE" validate:"required,url"`
	WeatherURL string `env:"URL_WEATHER" validate:"required,url"`

	CycleInterval time.Duration `env:"CYCLE_INTERVAL" validate:"gt=0"`
	MaxCycles     int           `env:"MAX_CYCLES" validate:"gte=0"`
	ParallelFetch bool          `env:"PARALLEL_FETCH"`

	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" validate:"gt=0"`
	FetchRetryCount int           `env:"FETCH_RETRY_COUNT" validate:"gte=0,lte=10"`
	FetchRateLimit  float64       `env:"FETCH_RATE_LIMIT" validate:"gte=0"`

	SinkMode  string `env:"SINK_MODE" validate:"oneof=print persist kafka"`
	OutputDir string `env:"OUTPUT_DIR" validate:"required_if=SinkMode persist"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS" validate:"required_if=SinkMode kafka"`
	KafkaSinkTopic string   `env:"KAFKA_SINK_TOPIC" validate:"required_if=SinkMode kafka"`

	HTTPAddr        string        `env:"HTTP_ADDR"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// Load reads configuration from environment variables, applying defaults where
// unset. A missing or invalid endpoint URL is reported here, before any cycle
// runs.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cycleInterval, err := parseDuration("CYCLE_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxCycles, err := parseInt("MAX_CYCLES", "0")
	if err != nil {
		return nil, err
	}
	retryCount, err := parseInt("FETCH_RETRY_COUNT", "2")
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseFloat("FETCH_RATE_LIMIT", "0")
	if err != nil {
		return nil, err
	}
	parallel, err := parseBool("PARALLEL_FETCH", "false")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PriceURL:   strings.TrimSpace(os.Getenv("URL_PRICE")),
		WeatherURL: strings.TrimSpace(os.Getenv("URL_WEATHER")),

		CycleInterval: cycleInterval,
		MaxCycles:     maxCycles,
		ParallelFetch: parallel,

		FetchTimeout:    fetchTimeout,
		FetchRetryCount: retryCount,
		FetchRateLimit:  rateLimit,

		SinkMode:  strings.ToLower(sharedcfg.EnvOrDefault("SINK_MODE", SinkPrint)),
		OutputDir: sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "energy-weather-merged"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports violations by environment
// variable name.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func parseInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %w", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %w", ErrInvalidConfig, key, err)
	}
	return f, nil
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s: %w", ErrInvalidConfig, key, err)
	}
	return b, nil
}
