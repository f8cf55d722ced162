package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryRegistry is an in-process Server and Registry. TTLs are ignored.
type MemoryRegistry struct {
	properties *xsync.MapOf[string, string]
	instances  *xsync.MapOf[string, map[string]ServiceInstance]
	status     atomic.Value // Status

	watchMu  sync.Mutex
	watchers map[string][]chan []ServiceInstance

	lookups atomic.Int64
}

func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{
		properties: xsync.NewMapOf[string, string](),
		instances:  xsync.NewMapOf[string, map[string]ServiceInstance](),
		watchers:   make(map[string][]chan []ServiceInstance),
	}
	r.status.Store(Status{})
	return r
}

// SetStatus changes what Status reports.
func (r *MemoryRegistry) SetStatus(s Status) {
	r.status.Store(s)
}

func (r *MemoryRegistry) SetProperty(_ context.Context, key, value string) error {
	r.properties.Store(key, value)
	return nil
}

// Lookups counts calls to Status and Properties.
func (r *MemoryRegistry) Lookups() int64 {
	return r.lookups.Load()
}

func (r *MemoryRegistry) Status() Status {
	r.lookups.Add(1)
	return r.status.Load().(Status)
}

func (r *MemoryRegistry) Properties(ctx context.Context, keys []string) (map[string]string, error) {
	r.lookups.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	props := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := r.properties.Load(key); ok {
			props[key] = v
		}
	}
	return props, nil
}

func (r *MemoryRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.instances.Compute(serviceName, func(old map[string]ServiceInstance, loaded bool) (map[string]ServiceInstance, bool) {
		next := make(map[string]ServiceInstance, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		next[instance.Addr] = instance
		return next, false
	})
	r.notify(serviceName)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.instances.Compute(serviceName, func(old map[string]ServiceInstance, loaded bool) (map[string]ServiceInstance, bool) {
		if !loaded {
			return nil, true
		}
		next := make(map[string]ServiceInstance, len(old))
		for k, v := range old {
			if k != addr {
				next[k] = v
			}
		}
		return next, len(next) == 0
	})
	r.notify(serviceName)
	return nil
}

// Discover returns instances sorted by address so results are stable.
func (r *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	set, _ := r.instances.Load(serviceName)
	instances := make([]ServiceInstance, 0, len(set))
	for _, inst := range set {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances, nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	r.watchMu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		r.watchMu.Lock()
		defer r.watchMu.Unlock()
		list := r.watchers[serviceName]
		for i, c := range list {
			if c == ch {
				r.watchers[serviceName] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

// notify pushes the latest list to every watcher, replacing an unread older one.
func (r *MemoryRegistry) notify(serviceName string) {
	instances, _ := r.Discover(context.Background(), serviceName)

	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
