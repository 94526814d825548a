package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agentsight configuration.
type Config struct {
	Version        string            `yaml:"version"`
	Server         ServerConfig      `yaml:"server"`
	Storage        StorageConfig     `yaml:"storage"`
	Redis          RedisConfig       `yaml:"redis,omitempty"`
	Ingest         IngestConfig      `yaml:"ingest,omitempty"`
	Agents         map[string]string `yaml:"agents,omitempty"` // agent ID -> display name
	CustomRulesDir string            `yaml:"custom_rules_dir,omitempty"`
	Telemetry      TelemetryConfig   `yaml:"telemetry,omitempty"`
}

// ServerConfig holds dashboard server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel    string `yaml:"log_level"`
	DisableAuth bool   `yaml:"disable_auth,omitempty"` // serve the API without the access code (local dev only)
}

// StorageConfig selects and configures the session store backend.
type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite, postgres
	Path          string `yaml:"path,omitempty"`
	DSN           string `yaml:"dsn,omitempty"`
	RetentionDays int    `yaml:"retention_days"` // auto-purge sessions older than N days (0 = keep forever)
}

// RedisConfig configures the optional display-name cache.
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password,omitempty"`
	DB             int    `yaml:"db,omitempty"`
	NameTTLMinutes int    `yaml:"name_ttl_minutes"`
}

// IngestConfig configures snapshot import from the filesystem.
type IngestConfig struct {
	WatchDir     string `yaml:"watch_dir"`
	ArchiveDir   string `yaml:"archive_dir,omitempty"`
	ScanOnImport bool   `yaml:"scan_on_import"`
}

// TelemetryConfig toggles trace export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses an agentsight config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./agentsight.db",
		},
		Redis: RedisConfig{
			NameTTLMinutes: 60,
		},
		Ingest: IngestConfig{
			ScanOnImport: true,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "./agentsight.db"
	}
	if cfg.Redis.NameTTLMinutes == 0 {
		cfg.Redis.NameTTLMinutes = 60
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./agentsight.db",
		},
		Redis: RedisConfig{
			Addr:           "127.0.0.1:6379",
			NameTTLMinutes: 60,
		},
		Ingest: IngestConfig{
			WatchDir:     "./incoming",
			ArchiveDir:   "./archive",
			ScanOnImport: true,
		},
		Agents: make(map[string]string),
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
		// valid
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("dsn is required when storage driver is postgres")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.Ingest.ArchiveDir != "" && c.Ingest.WatchDir == "" {
		return fmt.Errorf("archive_dir requires watch_dir")
	}
	for id, name := range c.Agents {
		if name == "" {
			return fmt.Errorf("agent %q has an empty display name", id)
		}
	}
	return nil
}
