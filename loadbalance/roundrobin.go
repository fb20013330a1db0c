package loadbalance

import (
	"sync/atomic"

	"light-rpc/internal/errs"
	"light-rpc/registry"
)

// RoundRobinBalancer walks the candidate list in order with a shared atomic
// counter. The rotation is only even while the candidate list is stable.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, errs.ErrNoEndpoint
	}
	index := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return endpoints[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
