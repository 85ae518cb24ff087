package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the shared configuration for the raceday binaries. Each binary
// reads the sections it needs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Results  ResultsConfig  `yaml:"results"`
	NATS     NATSConfig     `yaml:"nats"`
	Telegram TelegramConfig `yaml:"telegram"`
	Sheets   SheetsConfig   `yaml:"sheets"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	GatewayAddr string   `yaml:"gateway_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type CaptureConfig struct {
	TimingURL     string        `yaml:"timing_url"`
	RaceID        string        `yaml:"race_id"`
	DBPath        string        `yaml:"db_path"`
	Retention     time.Duration `yaml:"retention"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

type ResultsConfig struct {
	// TimingURL is the timing service as the gateway and exporter reach it,
	// which need not match the capture station's view of it.
	TimingURL        string        `yaml:"timing_url"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	RotationInterval time.Duration `yaml:"rotation_interval"`
	CacheMaxAge      time.Duration `yaml:"cache_max_age"`
	PageSize         int           `yaml:"page_size"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Consumer      string `yaml:"consumer"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			GatewayAddr: ":8081",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Capture: CaptureConfig{
			TimingURL:     "http://localhost:8080",
			DBPath:        "data/capture.db",
			Retention:     5 * time.Second,
			ProbeInterval: 5 * time.Second,
			SweepInterval: 10 * time.Second,
			SubmitTimeout: 10 * time.Second,
		},
		Results: ResultsConfig{
			TimingURL:        "http://localhost:8080",
			RefreshInterval:  5 * time.Second,
			RotationInterval: 10 * time.Second,
			CacheMaxAge:      30 * time.Second,
			PageSize:         20,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			StreamName:    "RACE_EVENTS",
			SubjectPrefix: "race.events",
			Consumer:      "results-gateway",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path or a missing file yields defaults
// plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.GatewayAddr = getEnv("GATEWAY_ADDR", c.Server.GatewayAddr)

	c.Capture.TimingURL = getEnv("TIMING_URL", c.Capture.TimingURL)
	c.Capture.RaceID = getEnv("RACE_ID", c.Capture.RaceID)
	c.Capture.DBPath = getEnv("CAPTURE_DB_PATH", c.Capture.DBPath)
	c.Capture.Retention = getEnvAsDuration("CAPTURE_RETENTION", c.Capture.Retention)
	c.Capture.ProbeInterval = getEnvAsDuration("CAPTURE_PROBE_INTERVAL", c.Capture.ProbeInterval)

	c.Results.TimingURL = getEnv("RESULTS_TIMING_URL", c.Results.TimingURL)
	c.Results.RefreshInterval = getEnvAsDuration("RESULTS_REFRESH_INTERVAL", c.Results.RefreshInterval)
	c.Results.RotationInterval = getEnvAsDuration("RESULTS_ROTATION_INTERVAL", c.Results.RotationInterval)
	c.Results.PageSize = getEnvAsInt("RESULTS_PAGE_SIZE", c.Results.PageSize)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = int64(getEnvAsInt("TELEGRAM_CHAT_ID", int(c.Telegram.ChatID)))

	c.Sheets.SpreadsheetID = getEnv("SHEETS_SPREADSHEET_ID", c.Sheets.SpreadsheetID)
	c.Sheets.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Sheets.CredentialsFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
