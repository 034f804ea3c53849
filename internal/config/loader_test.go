package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  address: ":9090"
  read_timeout: 10s
auth:
  secret: unit-test-secret
  token_ttl: 1h
  exempt_paths:
    - /healthz
route_source:
  type: file
  path: routes.json
upstream:
  timeout: 15s
`

func TestParseAppliesDefaultsAndOverrides(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("address = %q, want :9090", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	// untouched fields keep their defaults
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown_timeout = %v, want default 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("token_ttl = %v, want 1h", cfg.Auth.TokenTTL)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("upstream timeout = %v, want 15s", cfg.Upstream.Timeout)
	}
	if len(cfg.Auth.ExemptPaths) != 1 || cfg.Auth.ExemptPaths[0] != "/healthz" {
		t.Errorf("exempt_paths = %v", cfg.Auth.ExemptPaths)
	}
}

func TestParseSecretFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_AUTH_SECRET", "env-secret")

	yaml := `
route_source:
  type: file
  path: routes.json
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("secret = %q, want env-secret", cfg.Auth.Secret)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GW_ADDR", ":7070")
	t.Setenv("GATEWAY_AUTH_SECRET", "s")

	yaml := `
server:
  address: "${TEST_GW_ADDR}"
route_source:
  type: file
  path: routes.json
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("address = %q, want :7070", cfg.Server.Address)
	}
}

func TestParseRejectsMissingSecret(t *testing.T) {
	t.Setenv("GATEWAY_AUTH_SECRET", "")

	_, err := NewLoader().Parse([]byte("server:\n  address: \":8080\"\n"))
	if err == nil || !strings.Contains(err.Error(), "auth secret") {
		t.Fatalf("err = %v, want auth secret validation failure", err)
	}
}

func TestParseValidatesRouteSource(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"etcd without endpoints",
			"auth:\n  secret: s\nroute_source:\n  type: etcd\n",
			"endpoints",
		},
		{
			"unknown type",
			"auth:\n  secret: s\nroute_source:\n  type: zookeeper\n",
			"invalid route_source type",
		},
		{
			"consul registry without address",
			"auth:\n  secret: s\nregistry:\n  type: consul\n",
			"address is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}
