package registry

import (
	"context"
	"errors"
	"testing"
)

func TestServiceName(t *testing.T) {
	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"lb://user-service", "user-service", true},
		{"lb://user-service/", "user-service", true},
		{"http://localhost:8081", "", false},
		{"lb://", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ServiceName(tt.target)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ServiceName(%q) = %q, %v; want %q, %v", tt.target, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStaticRegistryResolve(t *testing.T) {
	r, err := NewStaticRegistry(map[string]string{
		"user-service":  "http://10.0.0.5:8081",
		"order-service": "https://orders.internal",
	})
	if err != nil {
		t.Fatalf("NewStaticRegistry: %v", err)
	}

	inst, err := r.Resolve(context.Background(), "user-service")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if inst.Address != "10.0.0.5" || inst.Port != 8081 {
		t.Errorf("instance = %s:%d, want 10.0.0.5:8081", inst.Address, inst.Port)
	}
	if inst.URL() != "http://10.0.0.5:8081" {
		t.Errorf("URL = %q", inst.URL())
	}

	inst, err = r.Resolve(context.Background(), "order-service")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if inst.Port != 443 {
		t.Errorf("default https port = %d, want 443", inst.Port)
	}

	if _, err := r.Resolve(context.Background(), "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrServiceNotFound", err)
	}
}

func TestStaticRegistryRejectsBadURL(t *testing.T) {
	if _, err := NewStaticRegistry(map[string]string{"bad": "://nope"}); err == nil {
		t.Fatal("invalid url accepted")
	}
}
