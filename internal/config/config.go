// Package config loads gridsync runtime configuration.
//
// Configuration comes from a YAML file, with environment variables
// (optionally loaded from a .env file) overriding individual values.
// The loader applies defaults, so an empty file is a valid
// configuration for a local memory-backed run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names for the sink grid.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// BufferConfig configures the durable update buffer.
type BufferConfig struct {
	// Path of the buffer SQLite database. Empty selects the in-memory
	// buffer (no crash safety; test and throwaway runs only).
	Path string `yaml:"path"`
}

// SinkConfig configures the grid backend.
type SinkConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	// Path of the grid SQLite database; required for the sqlite backend.
	Path string `yaml:"path"`
}

// FlushConfig configures the projector cadence and retry policy.
type FlushConfig struct {
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// HTTPConfig configures the ingest/query HTTP server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full runtime configuration.
type Config struct {
	Buffer BufferConfig `yaml:"buffer"`
	Sink   SinkConfig   `yaml:"sink"`
	Flush  FlushConfig  `yaml:"flush"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// Default returns the configuration used when no file is given:
// memory backends, 10-second flush cadence, three in-cycle retries.
func Default() Config {
	return Config{
		Sink: SinkConfig{Backend: BackendMemory},
		Flush: FlushConfig{
			Interval: 10 * time.Second,
			Attempts: 3,
			Delay:    time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads the YAML file at path, fills unset values with defaults,
// and applies environment overrides. An empty path yields the default
// configuration (still subject to env overrides).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotenv loads a .env file into the process environment if one
// exists. A missing file is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

// applyDefaults fills zero values left by a sparse YAML file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Sink.Backend == "" {
		cfg.Sink.Backend = def.Sink.Backend
	}
	if cfg.Flush.Interval == 0 {
		cfg.Flush.Interval = def.Flush.Interval
	}
	if cfg.Flush.Attempts == 0 {
		cfg.Flush.Attempts = def.Flush.Attempts
	}
	if cfg.Flush.Delay == 0 {
		cfg.Flush.Delay = def.Flush.Delay
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = def.HTTP.Addr
	}
}

// applyEnv overrides individual values from the environment.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("GRIDSYNC_BUFFER_PATH"); v != "" {
		cfg.Buffer.Path = v
	}
	if v := os.Getenv("GRIDSYNC_SINK_BACKEND"); v != "" {
		cfg.Sink.Backend = v
	}
	if v := os.Getenv("GRIDSYNC_SINK_PATH"); v != "" {
		cfg.Sink.Path = v
	}
	if v := os.Getenv("GRIDSYNC_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("GRIDSYNC_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GRIDSYNC_FLUSH_INTERVAL %q: %w", v, err)
		}
		cfg.Flush.Interval = d
	}
	if v := os.Getenv("GRIDSYNC_FLUSH_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRIDSYNC_FLUSH_ATTEMPTS %q: %w", v, err)
		}
		cfg.Flush.Attempts = n
	}
	return nil
}

func (cfg Config) validate() error {
	switch cfg.Sink.Backend {
	case BackendMemory:
	case BackendSQLite:
		if cfg.Sink.Path == "" {
			return fmt.Errorf("sink backend %q requires sink.path", BackendSQLite)
		}
	default:
		return fmt.Errorf("unknown sink backend %q: must be %q or %q",
			cfg.Sink.Backend, BackendMemory, BackendSQLite)
	}
	if cfg.Flush.Interval <= 0 {
		return fmt.Errorf("flush.interval must be positive, got %s", cfg.Flush.Interval)
	}
	return nil
}
