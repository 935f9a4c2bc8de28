/*
Package config loads runtime settings for the audit engine.

PRECEDENCE (later wins):
  1. DefaultConfig()
  2. YAML file (optional; a missing file means defaults)
  3. .env file, loaded into the process environment by LoadDotEnv
  4. AUDIT_* environment variables
  5. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  AUDIT_PORT        server.port
  AUDIT_DB_DRIVER   database.driver (sqlite3, sqlite, pgx)
  AUDIT_DB_DSN      database.dsn
  AUDIT_LOG_LEVEL   logging.level
  AUDIT_FORMS_FILE  forms.file
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Forms    FormsConfig    `yaml:"forms"`
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	IdleTimeout     string   `yaml:"idle_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	DemoScenarios   bool     `yaml:"demo_scenarios"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3, sqlite, pgx
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

type FormsConfig struct {
	// File replaces the built-in form definitions when set.
	File string `yaml:"file"`
	// SeedOnStart seeds forms that have no items or columns yet.
	SeedOnStart bool `yaml:"seed_on_start"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "30s",
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "audit.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Forms: FormsConfig{
			SeedOnStart: true,
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment. Variables already set
// win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AUDIT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("AUDIT_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("AUDIT_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("AUDIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUDIT_FORMS_FILE"); v != "" {
		c.Forms.File = v
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "pgx":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	// The router sends Access-Control-Allow-Credentials, which browsers
	// refuse to combine with a wildcard origin.
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			return errors.New("server.allowed_origins cannot contain \"*\": list the frontend origins")
		}
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported logging.format %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

func (s ServerConfig) GetReadTimeout() time.Duration     { return duration(s.ReadTimeout, 15*time.Second) }
func (s ServerConfig) GetWriteTimeout() time.Duration    { return duration(s.WriteTimeout, 15*time.Second) }
func (s ServerConfig) GetIdleTimeout() time.Duration     { return duration(s.IdleTimeout, 60*time.Second) }
func (s ServerConfig) GetShutdownTimeout() time.Duration { return duration(s.ShutdownTimeout, 30*time.Second) }

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
