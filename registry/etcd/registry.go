// Package etcd stores the service directory in etcd.
//
//	Key:   /light-rpc/{ServiceName}/{host:port}
//	Value: JSON-encoded registry.Endpoint
//
// Every registration is bound to a lease that is kept alive in the
// background, so the entries of a crashed server expire on their own.
package etcd

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"light-rpc/registry"
)

const (
	DefaultPrefix = "/light-rpc"
	DefaultTTL    = 10 // seconds

	revokeTimeout = 3 * time.Second
)

type Registry struct {
	client    *clientv3.Client
	kv        clientv3.KV
	lease     clientv3.Lease
	ownClient bool
	prefix    string
	ttl       int64
	logger    *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease

	ctx    context.Context
	cancel context.CancelFunc
}

func RegistryWithPrefix(prefix string) option.Option[Registry] {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// RegistryWithTTL sets the lease TTL in seconds.
func RegistryWithTTL(ttl int64) option.Option[Registry] {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func RegistryWithLogger(logger *zap.Logger) option.Option[Registry] {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry wraps an existing client. The caller keeps ownership of it.
func NewRegistry(c *clientv3.Client, opts ...option.Option[Registry]) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		client: c,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		logger: zap.L(),
		leases: make(map[string]clientv3.LeaseID),
		ctx:    ctx,
		cancel: cancel,
	}
	if c != nil {
		r.kv, r.lease = c.KV, c.Lease
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects to etcd and returns a registry that closes the client on Close.
// The etcd client logs through the registry's logger.
func Dial(endpoints []string, dialTimeout time.Duration, opts ...option.Option[Registry]) (*Registry, error) {
	r := NewRegistry(nil, opts...)
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      r.logger.Named("etcd"),
	})
	if err != nil {
		r.cancel()
		return nil, err
	}
	r.client = c
	r.kv, r.lease = c.KV, c.Lease
	r.ownClient = true
	return r, nil
}

func (r *Registry) key(serviceName string, ep registry.Endpoint) string {
	return r.servicePrefix(serviceName) + ep.Addr()
}

func (r *Registry) servicePrefix(serviceName string) string {
	return r.prefix + "/" + serviceName + "/"
}

// Register puts the endpoint under a fresh lease and keeps the lease alive
// until Deregister or Close. Registering the same key again replaces the
// previous lease.
func (r *Registry) Register(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	lease, err := r.lease.Grant(ctx, r.ttl)
	if err != nil {
		return err
	}
	key := r.key(serviceName, ep)
	if _, err = r.kv.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		r.abandon(ctx, lease.ID)
		return err
	}
	// keepalive outlives the registration call, so it hangs off the registry context
	ch, err := r.lease.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		r.abandon(ctx, lease.ID)
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("etcd lease keepalive stopped",
			zap.String("key", key), zap.Int64("lease", int64(lease.ID)))
	}()

	r.mu.Lock()
	old, replaced := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if replaced {
		r.revoke(ctx, old)
	}
	return nil
}

func (r *Registry) Deregister(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	key := r.key(serviceName, ep)
	if _, err := r.kv.Delete(ctx, key); err != nil {
		return err
	}
	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		r.revoke(ctx, id)
	}
	return nil
}

func (r *Registry) revoke(ctx context.Context, id clientv3.LeaseID) {
	if _, err := r.lease.Revoke(ctx, id); err != nil {
		r.logger.Warn("etcd lease revoke failed", zap.Int64("lease", int64(id)), zap.Error(err))
	}
}

// abandon revokes a lease granted by a registration that then failed. ctx may
// already be done, so the revoke gets its own deadline.
func (r *Registry) abandon(ctx context.Context, id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
	defer cancel()
	r.revoke(ctx, id)
}

// Discover lists the endpoints currently registered for serviceName.
// Malformed values are skipped.
func (r *Registry) Discover(ctx context.Context, serviceName string) ([]registry.Endpoint, error) {
	resp, err := r.kv.Get(ctx, r.servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	eps := make([]registry.Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep registry.Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Warn("skip malformed etcd entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Close stops every keepalive. Leases then run out after their TTL.
func (r *Registry) Close() error {
	r.cancel()
	if r.ownClient {
		return r.client.Close()
	}
	return nil
}
