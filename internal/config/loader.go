package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// The signing secret may come from the environment instead of the file
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = os.Getenv("GATEWAY_AUTH_SECRET")
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set auth.secret or GATEWAY_AUTH_SECRET)")
	}

	switch cfg.RouteSource.Type {
	case "file":
		if cfg.RouteSource.Path == "" {
			return fmt.Errorf("route_source: path is required for the file source")
		}
	case "etcd":
		if len(cfg.RouteSource.Endpoints) == 0 {
			return fmt.Errorf("route_source: endpoints are required for the etcd source")
		}
		if cfg.RouteSource.Key == "" {
			return fmt.Errorf("route_source: key is required for the etcd source")
		}
	default:
		return fmt.Errorf("invalid route_source type: %s", cfg.RouteSource.Type)
	}

	switch cfg.Registry.Type {
	case "", "static":
	case "consul":
		if cfg.Registry.Address == "" {
			return fmt.Errorf("registry: address is required for consul")
		}
	default:
		return fmt.Errorf("invalid registry type: %s", cfg.Registry.Type)
	}

	return nil
}
