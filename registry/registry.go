// Package registry describes where a pixie peer can be found.
//
// Two roles live here. Server is the upstream collaborator the client asks
// "are you connected and logged in, and what is pixie.connect?". Registry is
// plain service discovery: pixie instances register their address with a TTL
// and clients list them. EtcdRegistry plays both roles against one etcd cluster;
// MemoryRegistry does the same in-process.
package registry

import "context"

const (
	// PixieService is the service name pixie instances register under.
	PixieService = "pixie"
	// PropertyConnect holds the address pixie listens on.
	PropertyConnect = "pixie.connect"
)

// Status is a snapshot of the upstream server connection.
type Status struct {
	Connected bool
	LoggedIn  bool
}

// Ready reports whether properties can be trusted.
func (s Status) Ready() bool {
	return s.Connected && s.LoggedIn
}

// Server exposes the upstream server's status and configuration properties.
type Server interface {
	// Status must not block.
	Status() Status
	// Properties returns the values of keys that are set. Missing keys are absent from the map.
	Properties(ctx context.Context, keys []string) (map[string]string, error)
}

type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
