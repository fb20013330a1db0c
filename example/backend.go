// Package example holds what the example server and client share besides
// the service API: picking a discovery backend from flags.
package example

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"

	"light-rpc/registry"
	"light-rpc/registry/etcd"
	redisreg "light-rpc/registry/redis"
)

// OpenRegistry connects to the named backend: "etcd" or "redis".
func OpenRegistry(backend, etcdAddr, redisAddr string, logger *zap.Logger) (registry.Registry, error) {
	switch backend {
	case "etcd":
		r, err := etcd.Dial([]string{etcdAddr}, 3*time.Second, etcd.RegistryWithLogger(logger))
		if err != nil {
			return nil, err
		}
		return r, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		return redisreg.NewRegistry(rdb, redisreg.RegistryWithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}
