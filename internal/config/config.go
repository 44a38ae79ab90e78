package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every server setting. Values come from an optional yaml
// file with environment variables layered on top, so deployments can
// override single fields without a file edit.
type Config struct {
	HTTPPort int    `yaml:"http_port"`
	Store    string `yaml:"store"`

	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Timers   TimersConfig   `yaml:"timers"`

	// GameTTL bounds how long a game document lives before the sweep
	// removes it.
	GameTTL time.Duration `yaml:"game_ttl"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TimersConfig struct {
	SubmissionMinutes int `yaml:"submission_minutes"`
	SubmissionSeconds int `yaml:"submission_seconds"`
	VoteMinutes       int `yaml:"vote_minutes"`
	VoteSeconds       int `yaml:"vote_seconds"`
}

// normalize carries overflowing seconds into minutes so every clock
// snapshot reports seconds in the 0..59 range. Negative values are
// rejected.
func (t *TimersConfig) normalize() error {
	if t.SubmissionMinutes < 0 || t.SubmissionSeconds < 0 || t.VoteMinutes < 0 || t.VoteSeconds < 0 {
		return fmt.Errorf("timer values must not be negative")
	}
	t.SubmissionMinutes += t.SubmissionSeconds / 60
	t.SubmissionSeconds %= 60
	t.VoteMinutes += t.VoteSeconds / 60
	t.VoteSeconds %= 60
	return nil
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		HTTPPort: 8080,
		Store:    "memory",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "gifwars",
			SSLMode:  "disable",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			StreamName:    "GAME_EVENTS",
			SubjectPrefix: "game.events",
		},
		Timers: TimersConfig{
			SubmissionMinutes: 3,
			VoteMinutes:       1,
			VoteSeconds:       30,
		},
		GameTTL: 4 * time.Hour,
	}
}

// Load builds the configuration from defaults, then the yaml file at
// path (skipped when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Store != "memory" && cfg.Store != "postgres" {
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err := cfg.Timers.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvAsInt("HTTP_PORT", c.HTTPPort)
	c.Store = getEnv("STORE", c.Store)

	c.Postgres.Host = getEnv("DB_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnvAsInt("DB_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("DB_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("DB_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnv("DB_NAME", c.Postgres.Database)
	c.Postgres.SSLMode = getEnv("DB_SSLMODE", c.Postgres.SSLMode)

	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Timers.SubmissionMinutes = getEnvAsInt("SUBMISSION_MINUTES", c.Timers.SubmissionMinutes)
	c.Timers.SubmissionSeconds = getEnvAsInt("SUBMISSION_SECONDS", c.Timers.SubmissionSeconds)
	c.Timers.VoteMinutes = getEnvAsInt("VOTE_MINUTES", c.Timers.VoteMinutes)
	c.Timers.VoteSeconds = getEnvAsInt("VOTE_SECONDS", c.Timers.VoteSeconds)

	if v := os.Getenv("GAME_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GameTTL = d
		}
	}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
