package loadbalance

import (
	"math/rand/v2"

	"light-rpc/internal/errs"
	"light-rpc/registry"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to
// its weight. Endpoints without a positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, errs.ErrNoEndpoint
	}

	totalWeight := 0
	for _, ep := range endpoints {
		totalWeight += weightOf(ep)
	}

	r := rand.IntN(totalWeight)
	for _, ep := range endpoints {
		r -= weightOf(ep)
		if r < 0 {
			return ep, nil
		}
	}
	return endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weightOf(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
