// Package config provides configuration management for the policy
// intelligence engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Database  DatabaseConfig  `toml:"database"`
	Engine    EngineConfig    `toml:"engine"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	HTTPPort       int           `toml:"http_port"`
	BindAddress    string        `toml:"bind_address"`
	AuthToken      string        `toml:"auth_token"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	MaxRequestSize int64         `toml:"max_request_size"`
}

// TelemetryConfig contains logging and metrics settings
type TelemetryConfig struct {
	PrometheusEnabled bool   `toml:"prometheus_enabled"`
	LogFormat         string `toml:"log_format"` // "json" or "text"
	LogLevel          string `toml:"log_level"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Driver     string        `toml:"driver"` // "postgres" or "memory"
	DSN        string        `toml:"dsn"`    // Full DSN (alternative to individual fields)
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	User       string        `toml:"user"`
	Password   string        `toml:"password"`
	Database   string        `toml:"database"`
	SSLMode    string        `toml:"ssl_mode"`
	MaxConns   int           `toml:"max_conns"`
	MaxIdle    int           `toml:"max_idle"`
	ConnMaxAge time.Duration `toml:"conn_max_age"`
}

// GetDSN returns the DSN for the database
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// EngineConfig contains the detection thresholds. All three are similarity
// scores in [0,1]; zero values select the built-in defaults.
type EngineConfig struct {
	SimilarityFloor         float64 `toml:"similarity_floor"`          // auto-approval precedent floor
	DuplicateThreshold      float64 `toml:"duplicate_threshold"`       // duplicate clustering
	RoleSimilarityThreshold float64 `toml:"role_similarity_threshold"` // role-name clustering
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			BindAddress:    "0.0.0.0",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxRequestSize: 4 * 1024 * 1024, // embeddings make policy payloads chunky
		},
		Telemetry: TelemetryConfig{
			PrometheusEnabled: true,
			LogFormat:         "text",
			LogLevel:          "info",
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Database:   "policyscope",
			SSLMode:    "disable",
			MaxConns:   20,
			MaxIdle:    5,
			ConnMaxAge: 30 * time.Minute,
		},
	}
}

// Load loads configuration from a file, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		cfg.applyEnvOverrides()
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: Failed to load config from %s: %v\n", path, err)
		return Default()
	}
	return cfg
}

// Validate checks value ranges after file and environment merging.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d outside [1,65535]", c.Server.HTTPPort)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("database.driver %q must be postgres or memory", c.Database.Driver)
	}
	for name, v := range map[string]float64{
		"engine.similarity_floor":          c.Engine.SimilarityFloor,
		"engine.duplicate_threshold":       c.Engine.DuplicateThreshold,
		"engine.role_similarity_threshold": c.Engine.RoleSimilarityThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %.2f outside [0,1]", name, v)
		}
	}
	return nil
}

// applyEnvOverrides expands ${VAR} patterns and applies direct POLICYSCOPE_*
// environment variable overrides for container deployments.
func (c *Config) applyEnvOverrides() {
	c.Server.AuthToken = expandEnv(c.Server.AuthToken)
	c.Database.DSN = expandEnv(c.Database.DSN)
	c.Database.Host = expandEnv(c.Database.Host)
	c.Database.User = expandEnv(c.Database.User)
	c.Database.Password = expandEnv(c.Database.Password)

	if v := os.Getenv("POLICYSCOPE_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("POLICYSCOPE_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("POLICYSCOPE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("POLICYSCOPE_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("POLICYSCOPE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("POLICYSCOPE_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("POLICYSCOPE_DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}

	if v := os.Getenv("POLICYSCOPE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("POLICYSCOPE_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("POLICYSCOPE_LOG_LEVEL"); v != "" {
		c.Telemetry.LogLevel = v
	}
	if v := os.Getenv("POLICYSCOPE_LOG_FORMAT"); v != "" {
		c.Telemetry.LogFormat = v
	}
}

// expandEnv expands ${VAR} or $VAR patterns
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}
