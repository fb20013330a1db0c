package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"light-rpc/discovery"
	"light-rpc/example"
	"light-rpc/example/api"
	"light-rpc/middleware"
	"light-rpc/registry"
	"light-rpc/server"
)

type userService struct {
	mu     sync.RWMutex
	nextID atomic.Int64
	users  map[string]api.User
}

func (s *userService) GetUser(name string) (*api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, errors.New("user not found: " + name)
	}
	return &u, nil
}

func (s *userService) SaveUser(ctx context.Context, user api.User) (int64, error) {
	if user.Name == "" {
		return 0, errors.New("name is required")
	}
	user.ID = s.nextID.Add(1)
	s.mu.Lock()
	s.users[user.Name] = user
	s.mu.Unlock()
	return user.ID, nil
}

func (s *userService) Ping(ctx context.Context) error {
	return nil
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	advertise := flag.String("advertise", "127.0.0.1:8080", "address announced to the registry")
	backend := flag.String("registry", "etcd", "registry backend: etcd or redis")
	etcdAddr := flag.String("etcd", "127.0.0.1:2379", "etcd endpoint")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	idle := flag.Duration("idle", 30*time.Second, "close connections silent for this long, 0 disables")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ep, err := registry.ParseEndpoint(*advertise)
	if err != nil {
		logger.Fatal("bad advertise address", zap.Error(err))
	}
	reg, err := example.OpenRegistry(*backend, *etcdAddr, *redisAddr, logger)
	if err != nil {
		logger.Fatal("open registry", zap.Error(err))
	}
	d := discovery.NewServiceDiscovery(reg)
	defer d.Close()

	svr := server.NewServer(
		server.ServerWithDiscovery(d, ep),
		server.ServerWithReadIdleTimeout(*idle),
		server.ServerWithMiddleware(
			middleware.LoggingMiddleware(logger),
			middleware.RateLimitMiddleware(1000, 100),
			middleware.TimeOutMiddleware(3*time.Second),
		),
	)
	impl := &userService{users: map[string]api.User{
		"Henry": {ID: 0, Name: "Henry", Age: 18},
	}}
	if err = svr.Publish(api.ServiceName, impl); err != nil {
		logger.Fatal("publish failed", zap.Error(err))
	}

	go func() {
		if err := svr.Serve("tcp", *addr); err != nil {
			logger.Fatal("serve failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	if err = svr.Shutdown(5 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
