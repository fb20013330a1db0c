// Package redis stores the service directory in Redis. Each service is a set
// keyed by "{prefix}:{ServiceName}" whose members are JSON endpoints.
//
// Redis sets carry no per-member expiry, so entries of a crashed server
// stay until it is deregistered.
package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v9"
	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"light-rpc/registry"
)

const DefaultPrefix = "light-rpc"

type Registry struct {
	client redis.Cmdable
	prefix string
	logger *zap.Logger
}

func RegistryWithPrefix(prefix string) option.Option[Registry] {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

func RegistryWithLogger(logger *zap.Logger) option.Option[Registry] {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(client redis.Cmdable, opts ...option.Option[Registry]) *Registry {
	r := &Registry{
		client: client,
		prefix: DefaultPrefix,
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) key(serviceName string) string {
	return r.prefix + ":" + serviceName
}

// Register replaces any member with the same address, then adds ep.
func (r *Registry) Register(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	if err = r.Deregister(ctx, serviceName, ep); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.key(serviceName), string(val)).Err()
}

// Deregister removes every member whose address matches ep.
func (r *Registry) Deregister(ctx context.Context, serviceName string, ep registry.Endpoint) error {
	members, err := r.client.SMembers(ctx, r.key(serviceName)).Result()
	if err != nil {
		return err
	}
	stale := make([]any, 0, 1)
	for _, m := range members {
		var cur registry.Endpoint
		if err := json.Unmarshal([]byte(m), &cur); err != nil {
			continue
		}
		if cur.Addr() == ep.Addr() {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return r.client.SRem(ctx, r.key(serviceName), stale...).Err()
}

func (r *Registry) Discover(ctx context.Context, serviceName string) ([]registry.Endpoint, error) {
	members, err := r.client.SMembers(ctx, r.key(serviceName)).Result()
	if err != nil {
		return nil, err
	}
	eps := make([]registry.Endpoint, 0, len(members))
	for _, m := range members {
		var ep registry.Endpoint
		if err := json.Unmarshal([]byte(m), &ep); err != nil {
			r.logger.Warn("skip malformed redis member",
				zap.String("key", r.key(serviceName)), zap.Error(err))
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Close closes the underlying client when it supports closing.
func (r *Registry) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
