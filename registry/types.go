// Package registry defines the contract of a discovery backend: a shared
// directory mapping service names to the endpoints that serve them.
package registry

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"light-rpc/internal/errs"
)

// Endpoint is a reachable server address. Weight is only read by weighted
// balancers; zero means default weight.
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight,omitempty"`
}

// Addr returns the "host:port" form used for dialing and as the identity of
// the endpoint inside a backend.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Addr()
}

// ParseEndpoint turns "host:port" into an Endpoint.
func ParseEndpoint(addr string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", errs.ErrInvalidEndpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: bad port in %q", errs.ErrInvalidEndpoint, addr)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Registry is a discovery backend. Implementations must be safe for
// concurrent use. Register is idempotent per (service, endpoint address).
type Registry interface {
	Register(ctx context.Context, serviceName string, ep Endpoint) error
	Deregister(ctx context.Context, serviceName string, ep Endpoint) error
	Discover(ctx context.Context, serviceName string) ([]Endpoint, error)
	io.Closer
}
