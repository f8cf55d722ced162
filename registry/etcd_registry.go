package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures the etcd connection.
type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
	// Prefix roots every key, e.g. "/pixie-rpc".
	Prefix string
}

// EtcdRegistry implements Server and Registry on top of etcd v3.
//
// Layout:
//
//	{prefix}/properties/{key}        → raw property value
//	{prefix}/{service}/{addr}        → JSON-encoded ServiceInstance, bound to a TTL lease
type EtcdRegistry struct {
	client    *clientv3.Client // thread-safe, shared across goroutines
	prefix    string
	username  string
	connected atomic.Bool
	loggedIn  atomic.Bool
}

// NewEtcdRegistry creates the etcd client. It does not contact the cluster; call Connect for that.
func NewEtcdRegistry(cfg EtcdConfig) (*EtcdRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd: no endpoints provided")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "/pixie-rpc"
	}
	return &EtcdRegistry{client: c, prefix: prefix, username: cfg.Username}, nil
}

// Connect checks that the cluster answers and that this client is allowed in.
// It updates Status either way.
func (r *EtcdRegistry) Connect(ctx context.Context) error {
	r.connected.Store(false)
	r.loggedIn.Store(false)

	endpoints := r.client.Endpoints()
	if _, err := r.client.Status(ctx, endpoints[0]); err != nil {
		return fmt.Errorf("etcd status %s: %w", endpoints[0], err)
	}
	r.connected.Store(true)

	auth, err := r.client.AuthStatus(ctx)
	if err != nil {
		return fmt.Errorf("etcd auth status: %w", err)
	}
	// With auth enabled, clientv3 has already authenticated the supplied
	// credentials during New; without credentials we are anonymous.
	r.loggedIn.Store(!auth.Enabled || r.username != "")
	return nil
}

func (r *EtcdRegistry) Status() Status {
	return Status{Connected: r.connected.Load(), LoggedIn: r.loggedIn.Load()}
}

// Properties reads all keys in a single transaction.
func (r *EtcdRegistry) Properties(ctx context.Context, keys []string) (map[string]string, error) {
	ops := make([]clientv3.Op, 0, len(keys))
	for _, key := range keys {
		ops = append(ops, clientv3.OpGet(r.propertyKey(key)))
	}

	resp, err := r.client.Txn(ctx).Then(ops...).Commit()
	if err != nil {
		return nil, err
	}

	props := make(map[string]string, len(keys))
	for i, op := range resp.Responses {
		rng := op.GetResponseRange()
		if rng == nil || len(rng.Kvs) == 0 {
			continue
		}
		props[keys[i]] = string(rng.Kvs[0].Value)
	}
	return props, nil
}

// SetProperty writes one property. Used by the serving side to publish pixie.connect.
func (r *EtcdRegistry) SetProperty(ctx context.Context, key, value string) error {
	_, err := r.client.Put(ctx, r.propertyKey(key), value)
	return err
}

// Register adds a service instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// The lease id stays local so one EtcdRegistry can register several instances.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, r.instanceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// Renewal must outlive ctx; it stops when the client is closed.
	ch, err := r.client.KeepAlive(r.client.Ctx(), lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a service instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	_, err := r.client.Delete(ctx, r.instanceKey(serviceName, addr))
	return err
}

// Watch emits the full instance list whenever anything under the service prefix
// changes. The channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// re-fetch rather than apply individual events
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close releases the etcd client and stops all lease renewals.
func (r *EtcdRegistry) Close() error {
	r.connected.Store(false)
	r.loggedIn.Store(false)
	return r.client.Close()
}

func (r *EtcdRegistry) propertyKey(key string) string {
	return r.prefix + "/properties/" + key
}

func (r *EtcdRegistry) servicePrefix(serviceName string) string {
	return r.prefix + "/" + serviceName + "/"
}

func (r *EtcdRegistry) instanceKey(serviceName, addr string) string {
	return r.servicePrefix(serviceName) + addr
}
