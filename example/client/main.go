package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"light-rpc/client"
	"light-rpc/discovery"
	"light-rpc/example"
	"light-rpc/example/api"
	"light-rpc/loadbalance"
)

func main() {
	backend := flag.String("registry", "etcd", "registry backend: etcd or redis")
	etcdAddr := flag.String("etcd", "127.0.0.1:2379", "etcd endpoint")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	balancer := flag.String("balancer", "random", "random, round_robin or weighted_random")
	name := flag.String("name", "Henry", "user to look up")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	reg, err := example.OpenRegistry(*backend, *etcdAddr, *redisAddr, logger)
	if err != nil {
		logger.Fatal("open registry", zap.Error(err))
	}
	var b loadbalance.Balancer
	switch *balancer {
	case "round_robin":
		b = &loadbalance.RoundRobinBalancer{}
	case "weighted_random":
		b = &loadbalance.WeightedRandomBalancer{}
	default:
		b = &loadbalance.RandomBalancer{}
	}
	d := discovery.NewServiceDiscovery(reg, discovery.WithBalancer(b))
	defer d.Close()

	p := client.NewProxy(d, client.ProxyWithTimeout(3*time.Second))
	defer p.Close()
	users := &api.UserServiceClient{}
	if err = p.InitService(users); err != nil {
		logger.Fatal("init stub", zap.Error(err))
	}

	ctx := context.Background()
	if err = users.Ping(ctx); err != nil {
		logger.Fatal("ping", zap.Error(err))
	}
	id, err := users.SaveUser(ctx, api.User{Name: "Tom", Age: 20})
	if err != nil {
		logger.Fatal("save user", zap.Error(err))
	}
	logger.Info("saved", zap.Int64("id", id))

	u, err := users.GetUser(ctx, *name)
	if err != nil {
		logger.Fatal("get user", zap.Error(err))
	}
	logger.Info("got user", zap.String("name", u.Name), zap.Int("age", u.Age))

	// the untyped path
	data, err := p.Call(ctx, api.ServiceName, "GetUser", []string{"string"}, "Tom")
	if err != nil {
		logger.Fatal("call", zap.Error(err))
	}
	logger.Info("raw result", zap.Any("data", data))
}
