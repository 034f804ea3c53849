package config

import (
	"time"
)

// Config represents the complete gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Auth        AuthConfig        `yaml:"auth"`
	RouteSource RouteSourceConfig `yaml:"route_source"`
	Registry    RegistryConfig    `yaml:"registry"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
}

// ServerConfig defines the HTTP listener settings
type ServerConfig struct {
	Address           string        `yaml:"address"` // e.g., ":8080"
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig defines logger settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AuthConfig defines token issuing and validation settings
type AuthConfig struct {
	Secret      string        `yaml:"secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	ExemptPaths []string      `yaml:"exempt_paths"` // path prefixes that skip authentication
}

// RouteSourceConfig identifies the external source of the route configuration blob
type RouteSourceConfig struct {
	Type string `yaml:"type"` // "file" or "etcd"

	// File source
	Path string `yaml:"path"`

	// Etcd source
	Endpoints []string      `yaml:"endpoints"`
	Key       string        `yaml:"key"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RegistryConfig defines service discovery settings for logical upstream names
type RegistryConfig struct {
	Type    string            `yaml:"type"` // "consul", "static" or "" (disabled)
	Address string            `yaml:"address"`
	Token   string            `yaml:"token"`
	Static  map[string]string `yaml:"static"` // service name -> URL, for the static registry
}

// UpstreamConfig defines outbound transport settings
type UpstreamConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			ExemptPaths: []string{
				"/",
				"/healthz",
				"/api/v1/auth/login",
				"/api/v1/auth/register",
			},
		},
		RouteSource: RouteSourceConfig{
			Type:    "file",
			Path:    "configs/routes.json",
			Key:     "gateway-json-routes",
			Timeout: 5 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:             30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
