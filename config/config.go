// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendTable    = "table"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend          string        `yaml:"backend"`           // memory | table | redis | postgres
	Table            string        `yaml:"table"`             // Azure table name
	ConnectionString string        `yaml:"connection_string"` // Azure storage account
	Redis            string        `yaml:"redis"`             // URL or host:port,password=...,ssl=true
	RedisPrefix      string        `yaml:"redis_prefix"`
	Postgres         string        `yaml:"postgres"` // DSN
	Timeout          time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Queue string `yaml:"queue"` // empty disables created-event publishing
}

type Config struct {
	Listen           string       `yaml:"listen"`
	Debug            bool         `yaml:"debug"`
	LogFormat        string       `yaml:"log_format"` // text | json
	TraceSampleRatio float64      `yaml:"trace_sample_ratio"`
	Store            StoreConfig  `yaml:"store"`
	Notify           NotifyConfig `yaml:"notify"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Listen:           ":8080",
		LogFormat:        "text",
		TraceSampleRatio: 1,
		Store: StoreConfig{
			Backend: BackendMemory,
			Table:   "events",
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads path when it is not empty, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LISTEN_ADDR", &c.Listen)
	if port, ok := lookup("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && port != "" {
		c.Listen = ":" + port
	}
	str("LOG_FORMAT", &c.LogFormat)
	str("STORE_BACKEND", &c.Store.Backend)
	str("EVENTS_TABLE", &c.Store.Table)
	str("STORAGE_CONNECTION_STRING", &c.Store.ConnectionString)
	str("REDIS_CONNECTION_STRING", &c.Store.Redis)
	str("REDIS_PREFIX", &c.Store.RedisPrefix)
	str("DATABASE_URL", &c.Store.Postgres)
	str("EVENTS_QUEUE", &c.Notify.Queue)

	if v, ok := lookup("DEBUG"); ok && v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		c.Debug = dbg
	}
	if v, ok := lookup("STORE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
		}
		c.Store.Timeout = d
	}
	if v, ok := lookup("TRACE_SAMPLE_RATIO"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TRACE_SAMPLE_RATIO: %w", err)
		}
		c.TraceSampleRatio = r
	}
	return nil
}

// Normalize lower-cases enumerations and trims names.
func (c *Config) Normalize() {
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Store.Table = strings.TrimSpace(c.Store.Table)
	c.Notify.Queue = strings.TrimSpace(c.Notify.Queue)
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
}

// Validate reports the first inconsistent setting. Error messages name the
// missing setting and never echo connection strings.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace sample ratio %v out of range [0,1]", c.TraceSampleRatio)
	}
	if c.Store.Timeout < 0 {
		return errors.New("store timeout must not be negative")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendTable:
		if c.Store.ConnectionString == "" || c.Store.Table == "" {
			return errors.New("table backend needs STORAGE_CONNECTION_STRING and EVENTS_TABLE")
		}
	case BackendRedis:
		if c.Store.Redis == "" {
			return errors.New("redis backend needs REDIS_CONNECTION_STRING")
		}
	case BackendPostgres:
		if c.Store.Postgres == "" {
			return errors.New("postgres backend needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Notify.Queue != "" && c.Store.ConnectionString == "" {
		return errors.New("EVENTS_QUEUE needs STORAGE_CONNECTION_STRING")
	}
	return nil
}
