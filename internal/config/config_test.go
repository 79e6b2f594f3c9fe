package config

import (
	"log/slog"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Stations:      "station_coords.csv",
		Output:        "weather_log.csv",
		APIBaseURL:    "https://api.open-meteo.com",
		Timezone:      "Asia/Kolkata",
		BatchSize:     50,
		HTTPTimeout:   30 * time.Second,
		RetryInterval: 500 * time.Millisecond,
		RetentionDays: 30,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"ledger and pushgateway", func(c *Config) {
			c.DB = "data/fogwatch.db"
			c.PushgatewayURL = "http://localhost:9091"
		}, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"huge batch size", func(c *Config) { c.BatchSize = 5000 }, true},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, true},
		{"bad base url", func(c *Config) { c.APIBaseURL = "not a url" }, true},
		{"bad pushgateway url", func(c *Config) { c.PushgatewayURL = "::" }, true},
		{"empty stations", func(c *Config) { c.Stations = "" }, true},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }, true},
		{"too many retries", func(c *Config) { c.Retries = 50 }, true},
		{"breaker enabled", func(c *Config) { c.BreakerTrips = 5 }, false},
		{"breaker threshold too high", func(c *Config) { c.BreakerTrips = 5000 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	at := time.Date(2026, 1, 15, 0, 30, 0, 0, time.UTC).In(loc)
	if at.Hour() != 6 {
		t.Errorf("hour in %s = %d, want 6", loc, at.Hour())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) should fail")
	}
}
