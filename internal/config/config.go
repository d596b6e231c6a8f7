// Package config loads the server configuration: the two listener
// addresses (git wire protocol, HTTP API), the storage root, and the log
// path — generalized from a single-HTTP-addr shape to the two listeners
// this server exposes.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Git     GitConfig     `yaml:"git"`
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// GitConfig addresses the git smart-transport TCP listener (C7).
type GitConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig addresses the pull-request HTTP API listener (C7/C8).
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig names the server-state root (srv/<repo>/...).
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig names the destination for structured server logs.
type LogConfig struct {
	Path string `yaml:"path"`
}

func (c *Config) GitAddr() string  { return fmt.Sprintf("%s:%d", c.Git.Host, c.Git.Port) }
func (c *Config) HTTPAddr() string { return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port) }

// ValidateServe checks the fields `gir serve` cannot run without.
func (c *Config) ValidateServe() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must be configured")
	}
	return nil
}

// Default returns the server's built-in configuration: git on the
// conventional 9418 daemon port, the HTTP API on 8080, state under ./srv.
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Host: "0.0.0.0",
			Port: 9418,
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path: "srv",
		},
		Log: LogConfig{
			Path: "gir-server.log",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GIR_GIT_HOST"); v != "" {
		cfg.Git.Host = v
	}
	if v := os.Getenv("GIR_GIT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Git.Port = p
		}
	}
	if v := os.Getenv("GIR_HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}
	if v := os.Getenv("GIR_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("GIR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GIR_LOG_PATH"); v != "" {
		cfg.Log.Path = v
	}
}
