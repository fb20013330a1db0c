//go:build e2e

package redis

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"light-rpc/registry"
)

func TestRegisterAndDiscover(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	r := NewRegistry(rdb, RegistryWithPrefix("light-rpc-test"))
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, rdb.Del(ctx, "light-rpc-test:UserService").Err())

	ep1 := registry.Endpoint{Host: "127.0.0.1", Port: 8001, Weight: 10}
	ep2 := registry.Endpoint{Host: "127.0.0.1", Port: 8002, Weight: 5}
	require.NoError(t, r.Register(ctx, "UserService", ep1))
	require.NoError(t, r.Register(ctx, "UserService", ep2))
	// a new weight for a known address replaces the old member
	ep2.Weight = 7
	require.NoError(t, r.Register(ctx, "UserService", ep2))

	eps, err := r.Discover(ctx, "UserService")
	require.NoError(t, err)
	assert.ElementsMatch(t, []registry.Endpoint{ep1, ep2}, eps)

	require.NoError(t, r.Deregister(ctx, "UserService", ep1))
	eps, err = r.Discover(ctx, "UserService")
	require.NoError(t, err)
	assert.Equal(t, []registry.Endpoint{ep2}, eps)

	require.NoError(t, r.Deregister(ctx, "UserService", ep2))
	eps, err = r.Discover(ctx, "UserService")
	require.NoError(t, err)
	assert.Empty(t, eps)
}
