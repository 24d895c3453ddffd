// Package config handles codegen configuration loading.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danabrams/codegen/internal/kv"
	"github.com/danabrams/codegen/internal/logging"
)

// Config represents the complete codegen configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Completion CompletionConfig `yaml:"completion"`
	Runner     RunnerConfig     `yaml:"runner"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	APIKey         string   `yaml:"api_key"`
	CORSOrigins    []string `yaml:"cors_origins"`
	TurnsPerSecond float64  `yaml:"turns_per_second"`
	TurnBurst      int      `yaml:"turn_burst"`
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CompletionConfig holds completion endpoint settings. BaseURL and Model are
// the defaults used until the user saves their own.
type CompletionConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RunnerConfig holds code execution settings.
type RunnerConfig struct {
	NodePath       string `yaml:"node_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Dir returns the directory holding the default config file.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codegen"
	}
	return filepath.Join(home, ".codegen")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads configuration from a YAML file, then a .env file in the working
// directory, then environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	cfg.Server.Port = 8080
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.TurnsPerSecond = 2
	cfg.Server.TurnBurst = 4
	cfg.Storage.Backend = kv.BackendSQLite
	cfg.Storage.Path = filepath.Join(Dir(), "codegen.db")
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.Redis.Prefix = "codegen:"
	cfg.Completion.TimeoutSeconds = 120
	cfg.Runner.TimeoutSeconds = 10
	cfg.Log.Level = "info"
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CODEGEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CODEGEN_SERVER_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CODEGEN_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CODEGEN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("CODEGEN_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CODEGEN_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("CODEGEN_BASE_URL"); v != "" {
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("CODEGEN_MODEL"); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv("CODEGEN_NODE_BINARY"); v != "" {
		cfg.Runner.NodePath = v
	}
	if v := os.Getenv("CODEGEN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CODEGEN_LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = v == "true" || v == "1"
	}
}

// KV returns the storage options for kv.Open.
func (c *StorageConfig) KV() kv.Options {
	return kv.Options{
		Backend: c.Backend,
		Path:    c.Path,
		Redis: kv.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		},
	}
}

// Logging returns the logger configuration writing to stderr.
func (c *LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Level),
		Output: os.Stderr,
		Pretty: c.Pretty,
	}
}

// Timeout returns the completion request timeout.
func (c *CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-execution timeout.
func (c *RunnerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
