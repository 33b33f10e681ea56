// Package config loads and validates evalkit configuration from an optional YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datar-psa/evalkit/api"
)

// FileEnv names the environment variable pointing at an optional YAML config file.
const FileEnv = "EVALKIT_CONFIG"

// Config holds all evalkit configuration.
type Config struct {
	// Project settings.
	ProjectID string `yaml:"project_id"`
	RootDir   string `yaml:"root_dir"` // Defaults to the project id.
	Backend   string `yaml:"backend"`  // "local" or "remote"

	// Remote project service.
	RemoteURL     string        `yaml:"remote_url"`
	APIKey        string        `yaml:"api_key"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	// Gemini settings, used when building the default LLM generator.
	GoogleProjectID string `yaml:"google_project_id"`
	GoogleRegion    string `yaml:"google_region"`
	GeminiModel     string `yaml:"gemini_model"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:       string(api.BackendLocal),
		RemoteTimeout: 30 * time.Second,
		LogLevel:      "info",
	}
}

// Load reads the YAML file named by EVALKIT_CONFIG, if any, then applies environment
// variables on top. Environment variables win.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	var err error
	cfg.ProjectID = envStr("EVALKIT_PROJECT_ID", cfg.ProjectID)
	cfg.RootDir = envStr("EVALKIT_ROOT_DIR", cfg.RootDir)
	cfg.Backend = envStr("EVALKIT_BACKEND", cfg.Backend)
	cfg.RemoteURL = envStr("EVALKIT_REMOTE_URL", cfg.RemoteURL)
	cfg.APIKey = envStr("EVALKIT_API_KEY", cfg.APIKey)
	cfg.GoogleProjectID = envStr("GOOGLE_PROJECT_ID", cfg.GoogleProjectID)
	cfg.GoogleRegion = envStr("GOOGLE_REGION", cfg.GoogleRegion)
	cfg.GeminiModel = envStr("EVALKIT_GEMINI_MODEL", cfg.GeminiModel)
	cfg.LogLevel = envStr("EVALKIT_LOG_LEVEL", cfg.LogLevel)
	if cfg.RemoteTimeout, err = envDuration("EVALKIT_REMOTE_TIMEOUT", cfg.RemoteTimeout); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("config: EVALKIT_PROJECT_ID is required")
	}
	backend, err := api.ParseBackend(c.Backend)
	if err != nil {
		return fmt.Errorf("config: EVALKIT_BACKEND: %w", err)
	}
	if backend == api.BackendRemote && c.RemoteURL == "" {
		return errors.New("config: EVALKIT_REMOTE_URL is required for the remote backend")
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("config: EVALKIT_REMOTE_TIMEOUT must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("config: EVALKIT_LOG_LEVEL: %w", err)
	}
	return nil
}

// BackendTag returns the configured backend. Call Validate first.
func (c Config) BackendTag() api.Backend {
	return api.Backend(c.Backend)
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, err
	}
	return level, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := envInt(key, 0)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return time.Duration(secs) * time.Second, nil
}
