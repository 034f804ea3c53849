package registry

import (
	"context"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulRegistry resolves services against a Consul agent, returning only
// instances passing their health checks.
type ConsulRegistry struct {
	client *consulapi.Client
}

// NewConsulRegistry connects to the Consul agent at the given address.
func NewConsulRegistry(address, token string) (*ConsulRegistry, error) {
	cfg := consulapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	if token != "" {
		cfg.Token = token
	}

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &ConsulRegistry{client: client}, nil
}

// Resolve returns the first healthy instance of the service.
func (r *ConsulRegistry) Resolve(ctx context.Context, service string) (*Instance, error) {
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.client.Health().Service(service, "", true, opts)
	if err != nil {
		return nil, fmt.Errorf("consul health query for %s: %w", service, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}

	entry := entries[0]
	address := entry.Service.Address
	if address == "" {
		address = entry.Node.Address
	}
	return &Instance{
		ID:      entry.Service.ID,
		Service: service,
		Address: address,
		Port:    entry.Service.Port,
	}, nil
}

// Close is a no-op; the consul client has no connection to release.
func (r *ConsulRegistry) Close() error { return nil }
