package registry

import (
	"context"
	"sync"
)

// MemoryRegistry keeps the directory in process memory. It serves tests and
// single-process deployments where server and proxy share one instance.
type MemoryRegistry struct {
	mu       sync.RWMutex
	services map[string][]Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{services: make(map[string][]Endpoint)}
}

func (r *MemoryRegistry) Register(_ context.Context, serviceName string, ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[serviceName]
	for i, e := range eps {
		if e.Addr() == ep.Addr() {
			eps[i] = ep
			return nil
		}
	}
	r.services[serviceName] = append(eps, ep)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, serviceName string, ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[serviceName]
	for i, e := range eps {
		if e.Addr() == ep.Addr() {
			eps = append(eps[:i], eps[i+1:]...)
			break
		}
	}
	if len(eps) == 0 {
		delete(r.services, serviceName)
		return nil
	}
	r.services[serviceName] = eps
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps := r.services[serviceName]
	res := make([]Endpoint, len(eps))
	copy(res, eps)
	return res, nil
}

func (r *MemoryRegistry) Close() error {
	return nil
}
