// Package loadbalance picks one pixie instance when discovery returns several.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - Sticky:          a consistent hash of the client id, so one client keeps
//     talking to the same instance while the instance set is unchanged
package loadbalance

import (
	"fmt"
	"strings"

	"pixie-rpc/registry"
)

// Balancer is the interface for load balancing strategies.
// The client calls Pick() each time it resolves an address from discovery.
type Balancer interface {
	// Pick selects one instance from the available list. Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer called name. key only matters for "sticky".
func New(name, key string) (Balancer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round-robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted", "weighted-random":
		return &WeightedRandomBalancer{}, nil
	case "sticky", "consistent-hash":
		return NewStickyBalancer(key), nil
	default:
		return nil, fmt.Errorf("invalid balancer %q (must be round-robin, weighted or sticky)", name)
	}
}
