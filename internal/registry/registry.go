package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrServiceNotFound is returned when a logical service name resolves to
// no healthy instance.
var ErrServiceNotFound = errors.New("service not found")

// Instance is one resolvable backend address for a logical service.
type Instance struct {
	ID      string
	Service string
	Address string
	Port    int
}

// URL returns the instance's http base URL.
func (i *Instance) URL() string {
	return fmt.Sprintf("http://%s:%d", i.Address, i.Port)
}

// Registry resolves logical service names to backend instances.
type Registry interface {
	Resolve(ctx context.Context, service string) (*Instance, error)
	Close() error
}

// ServiceName extracts the logical service name from an lb:// target URI,
// or returns false when the target is a plain URL.
func ServiceName(target string) (string, bool) {
	const scheme = "lb://"
	if !strings.HasPrefix(target, scheme) {
		return "", false
	}
	name := strings.TrimPrefix(target, scheme)
	name = strings.TrimSuffix(name, "/")
	return name, name != ""
}
