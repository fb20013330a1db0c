// Package loadbalance picks one endpoint out of the candidates a discovery
// backend returned for a service.
//
//   - Random:          uniform choice, the default
//   - RoundRobin:      equal-capacity endpoints, strict rotation
//   - WeightedRandom:  heterogeneous endpoints, chosen by Endpoint.Weight
package loadbalance

import "light-rpc/registry"

// Balancer is called on every lookup and must be safe for concurrent use.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (registry.Endpoint, error)
	Name() string
}

