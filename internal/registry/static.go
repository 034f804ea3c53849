package registry

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// StaticRegistry resolves services from a fixed name→URL map declared in
// configuration. Useful for small deployments and tests.
type StaticRegistry struct {
	instances map[string]*Instance
}

// NewStaticRegistry builds a registry from service name to base URL,
// e.g. "user-service" -> "http://10.0.0.5:8081".
func NewStaticRegistry(services map[string]string) (*StaticRegistry, error) {
	instances := make(map[string]*Instance, len(services))
	for name, raw := range services {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("static service %s: invalid url %q", name, raw)
		}

		host, portStr, err := net.SplitHostPort(u.Host)
		if err != nil {
			host = u.Host
			portStr = "80"
			if u.Scheme == "https" {
				portStr = "443"
			}
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("static service %s: invalid port %q", name, portStr)
		}

		instances[name] = &Instance{
			ID:      name,
			Service: name,
			Address: host,
			Port:    port,
		}
	}
	return &StaticRegistry{instances: instances}, nil
}

// Resolve returns the configured instance for the service.
func (r *StaticRegistry) Resolve(ctx context.Context, service string) (*Instance, error) {
	inst, ok := r.instances[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	return inst, nil
}

// Close is a no-op.
func (r *StaticRegistry) Close() error { return nil }
