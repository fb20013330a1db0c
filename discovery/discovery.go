// Package discovery is the layer servers and proxies talk to: it wraps a
// registry backend with registration retries on one side and endpoint
// selection on the other.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"light-rpc/internal/errs"
	"light-rpc/loadbalance"
	"light-rpc/registry"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
)

type Discovery interface {
	// Register announces ep as a provider of serviceName.
	Register(ctx context.Context, serviceName string, ep registry.Endpoint) error
	Deregister(ctx context.Context, serviceName string, ep registry.Endpoint) error
	// Lookup returns one live endpoint of serviceName. It fails with
	// errs.ErrNoEndpoint when nobody provides the service.
	Lookup(ctx context.Context, serviceName string) (registry.Endpoint, error)
}

type ServiceDiscovery struct {
	backend     registry.Registry
	balancer    loadbalance.Balancer
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
}

func WithBalancer(b loadbalance.Balancer) option.Option[ServiceDiscovery] {
	return func(d *ServiceDiscovery) {
		d.balancer = b
	}
}

// WithRetry sets how many times Register is attempted and the fixed pause
// between attempts.
func WithRetry(maxAttempts int, delay time.Duration) option.Option[ServiceDiscovery] {
	return func(d *ServiceDiscovery) {
		d.maxAttempts = maxAttempts
		d.retryDelay = delay
	}
}

func WithLogger(logger *zap.Logger) option.Option[ServiceDiscovery] {
	return func(d *ServiceDiscovery) {
		d.logger = logger
	}
}

func NewServiceDiscovery(backend registry.Registry, opts ...option.Option[ServiceDiscovery]) *ServiceDiscovery {
	d := &ServiceDiscovery{
		backend:     backend,
		balancer:    &loadbalance.RandomBalancer{},
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Register retries a failing backend with a fixed delay. Once all attempts
// are used up it returns an error wrapping errs.ErrRegisterFailed and the
// last backend error.
func (d *ServiceDiscovery) Register(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = d.backend.Register(ctx, serviceName, ep)
		if lastErr == nil {
			d.logger.Info("service registered",
				zap.String("service", serviceName), zap.String("endpoint", ep.Addr()))
			return nil
		}
		d.logger.Warn("service registration failed",
			zap.String("service", serviceName),
			zap.String("endpoint", ep.Addr()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-time.After(d.retryDelay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s at %s: %w", errs.ErrRegisterFailed, serviceName, ep.Addr(), ctx.Err())
		}
	}
	return fmt.Errorf("%w: %s at %s after %d attempts: %w",
		errs.ErrRegisterFailed, serviceName, ep.Addr(), d.maxAttempts, lastErr)
}

func (d *ServiceDiscovery) Deregister(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	return d.backend.Deregister(ctx, serviceName, ep)
}

func (d *ServiceDiscovery) Lookup(ctx context.Context, serviceName string) (registry.Endpoint, error) {
	eps, err := d.backend.Discover(ctx, serviceName)
	if err != nil {
		return registry.Endpoint{}, err
	}
	if len(eps) == 0 {
		return registry.Endpoint{}, fmt.Errorf("%w: %s", errs.ErrNoEndpoint, serviceName)
	}
	return d.balancer.Pick(eps)
}

// Close releases the backend.
func (d *ServiceDiscovery) Close() error {
	return d.backend.Close()
}
