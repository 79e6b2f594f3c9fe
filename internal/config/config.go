// Package config holds the settings shared by every fogwatch command.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is embedded into the CLI. Every flag can also be set from the
// environment or a .env file.
type Config struct {
	Stations       string        `name:"stations" env:"FOGWATCH_STATIONS" default:"station_coords.csv" help:"Station table: local CSV path or ftp:// URL." validate:"required"`
	Output         string        `name:"output" env:"FOGWATCH_OUTPUT" default:"weather_log.csv" help:"Weather log CSV to append to." validate:"required"`
	DB             string        `name:"db" env:"FOGWATCH_DB" default:"" help:"SQLite run ledger path. Empty disables the ledger."`
	APIBaseURL     string        `name:"api-base-url" env:"FOGWATCH_API_BASE_URL" default:"https://api.open-meteo.com" help:"Open-Meteo base URL." validate:"required,url"`
	Timezone       string        `name:"timezone" env:"FOGWATCH_TIMEZONE" default:"Asia/Kolkata" help:"IANA zone used for the forecast and the logged hour." validate:"required"`
	BatchSize      int           `name:"batch-size" env:"FOGWATCH_BATCH_SIZE" default:"50" help:"Stations per forecast request." validate:"gte=1,lte=1000"`
	HTTPTimeout    time.Duration `name:"http-timeout" env:"FOGWATCH_HTTP_TIMEOUT" default:"30s" help:"Per-request timeout." validate:"gt=0"`
	Retries        uint64        `name:"retries" env:"FOGWATCH_RETRIES" default:"0" help:"Extra attempts per batch on transport errors, 429 and 5xx." validate:"lte=10"`
	RetryInterval  time.Duration `name:"retry-interval" env:"FOGWATCH_RETRY_INTERVAL" default:"500ms" help:"Initial backoff between retries." validate:"gte=0"`
	BreakerTrips   uint32        `name:"breaker-threshold" env:"FOGWATCH_BREAKER_THRESHOLD" default:"0" help:"Consecutive request failures that open the circuit and fail later batches without a request. 0 never trips." validate:"lte=1000"`
	RetentionDays  int           `name:"payload-retention-days" env:"FOGWATCH_PAYLOAD_RETENTION_DAYS" default:"30" help:"Days to keep raw payloads in the ledger. 0 keeps them forever." validate:"gte=0"`
	PushgatewayURL string        `name:"pushgateway-url" env:"FOGWATCH_PUSHGATEWAY_URL" default:"" help:"Push metrics here after each run." validate:"omitempty,url"`
	LogLevel       string        `name:"log-level" env:"FOGWATCH_LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat      string        `name:"log-format" env:"FOGWATCH_LOG_FORMAT" default:"text" enum:"text,json" help:"Log output format."`
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
