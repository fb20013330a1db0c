package loadbalance

import (
	"math/rand/v2"

	"light-rpc/internal/errs"
	"light-rpc/registry"
)

// RandomBalancer picks uniformly among the candidates.
type RandomBalancer struct{}

func (b *RandomBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, errs.ErrNoEndpoint
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

func (b *RandomBalancer) Name() string {
	return "Random"
}
