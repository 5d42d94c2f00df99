// Package loadbalance picks the server a client sends a request to among the instances
// that host its target space.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity servers
//   - WeightedRandom:  heterogeneous servers (different CPU/memory)
//   - ConsistentHash:  one client session sticks to one server, so its blocked reads and
//     the writes that satisfy them meet in the same space
package loadbalance

import (
	"errors"
	"fmt"

	"tuplespace/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each request to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list. key is the client session;
	// strategies that don't need affinity ignore it.
	// Called on every request, must be goroutine-safe.
	Pick(key string, instances []registry.Instance) (registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name: "round_robin", "weighted_random" or
// "consistent_hash".
func New(name string) (Balancer, error) {
	switch name {
	case "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
	}
}
