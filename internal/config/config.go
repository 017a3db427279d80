package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Bind    string `yaml:"bind"`
		Port    string `yaml:"port"`
		Verbose bool   `yaml:"verbose"`
		Profile bool   `yaml:"profile"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		AnswerWindow    string `yaml:"answerWindow"`
		MinParticipants *int   `yaml:"minParticipants"`
		RoomTTL         string `yaml:"roomTTL"`
		QuestionSetTTL  string `yaml:"questionSetTTL"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path. A missing file yields the zero config so the
// service can run on flags and environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.StorageDriver() {
	case DriverMemory, DriverSQLite:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("storage.driver redis requires redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("storage.driver postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Quiz.MinParticipants != nil && *c.Quiz.MinParticipants < 0 {
		return errors.New("quiz.minParticipants must not be negative")
	}
	return nil
}

// StorageDriver returns the configured room store, defaulting to memory.
func (c Config) StorageDriver() string {
	if c.Storage.Driver == "" {
		return DriverMemory
	}
	return c.Storage.Driver
}

// MinParticipants returns quiz.minParticipants or the fallback when unset.
func (c Config) MinParticipants(fallback int) int {
	if c.Quiz.MinParticipants == nil {
		return fallback
	}
	return *c.Quiz.MinParticipants
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
