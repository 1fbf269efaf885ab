package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level textgate configuration file.
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	MCP       MCPConfig       `yaml:"mcp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// StoreConfig selects and configures the entity store backend.
type StoreConfig struct {
	Driver  string `yaml:"driver"`   // sqlite, postgres, mysql
	DSN     string `yaml:"dsn"`      // postgres/mysql connection string
	DataDir string `yaml:"data_dir"` // sqlite database directory
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret          string         `yaml:"jwt_secret"`
	JWTExpiry          string         `yaml:"jwt_expiry"`
	BcryptCost         int            `yaml:"bcrypt_cost"`
	LoginRatePerMinute int            `yaml:"login_rate_per_minute"`
	Bootstrap          BootstrapAdmin `yaml:"bootstrap"`
}

// BootstrapAdmin is the admin account materialized at serve startup when no
// admin exists yet.
type BootstrapAdmin struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// UpstreamConfig points at the Ollama-compatible text-generation backend.
type UpstreamConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
}

// TelemetryConfig controls the anonymous heartbeat.
type TelemetryConfig struct {
	Disabled bool `yaml:"disabled"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: "data",
		},
		Auth: AuthConfig{
			JWTExpiry:          "30m",
			BcryptCost:         12,
			LoginRatePerMinute: 10,
			Bootstrap: BootstrapAdmin{
				Username: "admin",
				Email:    "admin@localhost",
			},
		},
		Upstream: UpstreamConfig{
			URL:     "http://localhost:11434",
			Timeout: "5m",
		},
		MCP: MCPConfig{
			Enabled:   false,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
