package server

import (
	"sort"
	"sync"
)

// LocalRegistry maps service names to published implementations. It lives
// for the process only: it is filled at publish time and read on every
// inbound request. Publishing a name twice replaces the first binding.
type LocalRegistry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{services: make(map[string]*Service)}
}

// Register binds impl under name, building its dispatch table.
func (r *LocalRegistry) Register(name string, impl any) error {
	svc, err := NewService(name, impl)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.services[name] = svc
	r.mu.Unlock()
	return nil
}

func (r *LocalRegistry) Get(name string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns the published service names, sorted.
func (r *LocalRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
