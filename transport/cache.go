package transport

import (
	"context"
	"sync"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DialFunc opens a Client to addr.
type DialFunc func(ctx context.Context, addr string) (*Client, error)

// ConnCache keeps one Client per remote address. The first caller for an
// address dials; concurrent first callers share that single dial, and later
// callers reuse the cached Client.
//
// Known gap: a Client whose connection has died is not evicted or
// reconnected automatically. It keeps being returned until Evict is called
// for its address or the process restarts.
type ConnCache struct {
	mu      sync.RWMutex
	clients map[string]*Client
	group   singleflight.Group
	dial    DialFunc
	logger  *zap.Logger
}

// ConnCacheWithDialer replaces the dial function, e.g. to pass Client options.
func ConnCacheWithDialer(dial DialFunc) option.Option[ConnCache] {
	return func(c *ConnCache) {
		c.dial = dial
	}
}

func ConnCacheWithLogger(logger *zap.Logger) option.Option[ConnCache] {
	return func(c *ConnCache) {
		c.logger = logger
	}
}

func NewConnCache(opts ...option.Option[ConnCache]) *ConnCache {
	c := &ConnCache{
		clients: make(map[string]*Client),
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		logger := c.logger
		c.dial = func(ctx context.Context, addr string) (*Client, error) {
			return Dial(ctx, addr, ClientWithLogger(logger))
		}
	}
	return c
}

// Get returns the Client for addr, creating and connecting it on first use.
// A connect failure is returned to every caller waiting on that dial and
// nothing is cached, so the next call dials again. A caller whose ctx ends
// first returns ctx.Err() while the dial carries on for the others.
func (c *ConnCache) Get(ctx context.Context, addr string) (*Client, error) {
	c.mu.RLock()
	client, ok := c.clients[addr]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	ch := c.group.DoChan(addr, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.clients[addr]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		// the dial is shared, one caller's cancellation must not fail the others
		created, err := c.dial(context.WithoutCancel(ctx), addr)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.clients[addr] = created
		c.mu.Unlock()
		c.logger.Info("created new connection", zap.String("addr", addr))
		return created, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evict drops and closes the Client cached for addr, if any.
func (c *ConnCache) Evict(addr string) {
	c.mu.Lock()
	client, ok := c.clients[addr]
	delete(c.clients, addr)
	c.mu.Unlock()
	if ok {
		_ = client.Close()
	}
}

// Len returns the number of cached clients.
func (c *ConnCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Close closes every cached Client and empties the cache.
func (c *ConnCache) Close() error {
	c.mu.Lock()
	clients := c.clients
	c.clients = make(map[string]*Client)
	c.mu.Unlock()
	for _, client := range clients {
		_ = client.Close()
	}
	return nil
}
