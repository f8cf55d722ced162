package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"pixie-rpc/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring.
// The same key always maps to the same instance until the ring changes.
//
// Each real instance is placed on the ring as N virtual nodes; without them a
// few instances can cluster together and take most of the keys.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int                                  // Virtual nodes per real instance
	ring     []uint32                             // Sorted hash values on the ring
	nodes    map[uint32]*registry.ServiceInstance // Hash value → instance mapping
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		ring:     []uint32{},
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the hash ring, hashing "{addr}#{i}" per virtual node.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", instance.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick finds the instance responsible for key: the first node at or after the
// key's hash, wrapping around to the start of the ring.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

// StickyBalancer adapts the hash ring to Balancer with a fixed key, usually the client id.
// The ring is rebuilt from the instance list on every Pick; lists are short.
type StickyBalancer struct {
	key string
}

func NewStickyBalancer(key string) *StickyBalancer {
	return &StickyBalancer{key: key}
}

func (b *StickyBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	ring := NewConsistentHashBalancer()
	for i := range instances {
		ring.Add(&instances[i])
	}
	return ring.Pick(b.key)
}

func (b *StickyBalancer) Name() string {
	return "Sticky"
}
