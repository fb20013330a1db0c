package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"light-rpc/discovery/mocks"
	"light-rpc/internal/errs"
	"light-rpc/registry"
	"light-rpc/server"
	"light-rpc/transport"
)

type User struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type userServiceImpl struct{}

func (u *userServiceImpl) GetUser(name string) (*User, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	return &User{Name: name, Age: 18}, nil
}

func (u *userServiceImpl) Add(a, b int) int {
	return a + b
}

func (u *userServiceImpl) Save(ctx context.Context, user User) error {
	if user.Age < 0 {
		return fmt.Errorf("invalid age %d", user.Age)
	}
	return nil
}

func (u *userServiceImpl) Sleep(ctx context.Context, ms int) string {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return "awake"
}

// startUserServer serves userServiceImpl on a random port and returns its
// endpoint.
func startUserServer(t testing.TB, opts ...option.Option[server.Server]) registry.Endpoint {
	t.Helper()
	svr := server.NewServer(opts...)
	require.NoError(t, svr.Publish("UserService", &userServiceImpl{}))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = svr.ServeListener(l)
	}()
	t.Cleanup(func() {
		_ = svr.Shutdown(time.Second)
	})
	ep, err := registry.ParseEndpoint(l.Addr().String())
	require.NoError(t, err)
	return ep
}

func TestProxyCall(t *testing.T) {
	ep := startUserServer(t)
	lookupErr := errors.New("etcd unavailable")

	testCases := []struct {
		name       string
		mock       func(d *mocks.MockDiscovery)
		method     string
		paramTypes []string
		args       []any
		want       any
		wantErrs   []error
	}{
		{
			name: "success",
			mock: func(d *mocks.MockDiscovery) {
				d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil)
			},
			method:     "GetUser",
			paramTypes: []string{"string"},
			args:       []any{"Henry"},
			want:       map[string]any{"name": "Henry", "age": json.Number("18")},
		},
		{
			name: "no providers",
			mock: func(d *mocks.MockDiscovery) {
				d.EXPECT().Lookup(gomock.Any(), "UserService").
					Return(registry.Endpoint{}, fmt.Errorf("%w: UserService", errs.ErrNoEndpoint))
			},
			method:     "GetUser",
			paramTypes: []string{"string"},
			args:       []any{"Henry"},
			wantErrs:   []error{errs.ErrServiceNotFound, errs.ErrNoEndpoint},
		},
		{
			name: "lookup failure",
			mock: func(d *mocks.MockDiscovery) {
				d.EXPECT().Lookup(gomock.Any(), "UserService").Return(registry.Endpoint{}, lookupErr)
			},
			method:     "GetUser",
			paramTypes: []string{"string"},
			args:       []any{"Henry"},
			wantErrs:   []error{lookupErr},
		},
		{
			name: "remote failure",
			mock: func(d *mocks.MockDiscovery) {
				d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil)
			},
			method:     "GetUser",
			paramTypes: []string{"string"},
			args:       []any{""},
			wantErrs:   []error{errs.ErrRemote},
		},
		{
			name:       "argument count",
			mock:       func(d *mocks.MockDiscovery) {},
			method:     "Add",
			paramTypes: []string{"int", "int"},
			args:       []any{1},
			wantErrs:   []error{errs.ErrArgumentMismatch},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			d := mocks.NewMockDiscovery(ctrl)
			tc.mock(d)
			p := NewProxy(d)
			defer p.Close()

			got, err := p.Call(context.Background(), "UserService", tc.method, tc.paramTypes, tc.args...)
			for _, want := range tc.wantErrs {
				assert.ErrorIs(t, err, want)
			}
			if len(tc.wantErrs) > 0 {
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProxyRemoteError(t *testing.T) {
	ep := startUserServer(t)
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDiscovery(ctrl)
	d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil)
	p := NewProxy(d)
	defer p.Close()

	_, err := p.Call(context.Background(), "UserService", "DeleteUser", []string{"string"}, "Henry")
	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 500, remoteErr.Code)
	assert.Equal(t, "light-rpc: method not found: UserService.DeleteUser(string)", remoteErr.Message)
	assert.Equal(t, "DeleteUser", remoteErr.Method)
}

func TestProxyTimeout(t *testing.T) {
	ep := startUserServer(t)
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDiscovery(ctrl)
	d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil).Times(2)

	cache := transport.NewConnCache()
	defer cache.Close()
	p := NewProxy(d, ProxyWithConnCache(cache), ProxyWithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := p.Call(context.Background(), "UserService", "Sleep", []string{"int"}, 500)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	conn, err := cache.Get(context.Background(), ep.Addr())
	require.NoError(t, err)
	// the timed out call left nothing behind
	assert.Equal(t, 0, conn.Pending())

	// a deadline on the caller's context wins over the default
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := p.Call(ctx, "UserService", "Sleep", []string{"int"}, 100)
	require.NoError(t, err)
	assert.Equal(t, "awake", got)
}

func TestProxyTimeoutCoversConnect(t *testing.T) {
	ep := startUserServer(t)
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDiscovery(ctrl)
	d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil).Times(2)

	release := make(chan struct{})
	defer close(release)
	cache := transport.NewConnCache(transport.ConnCacheWithDialer(func(ctx context.Context, addr string) (*transport.Client, error) {
		select {
		case <-release:
			return nil, errors.New("dial abandoned")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	defer cache.Close()
	p := NewProxy(d, ProxyWithConnCache(cache), ProxyWithTimeout(time.Minute))

	testCases := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		p    *Proxy
	}{
		{
			name: "caller deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
			p: p,
		},
		{
			name: "default timeout",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.Background(), func() {}
			},
			p: NewProxy(d, ProxyWithConnCache(cache), ProxyWithTimeout(100*time.Millisecond)),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := tc.ctx()
			defer cancel()
			start := time.Now()
			_, err := tc.p.Call(ctx, "UserService", "Add", []string{"int", "int"}, 1, 2)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestProxyReusesConnection(t *testing.T) {
	ep := startUserServer(t)
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDiscovery(ctrl)
	d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil).Times(10)

	cache := transport.NewConnCache()
	defer cache.Close()
	p := NewProxy(d, ProxyWithConnCache(cache))
	for i := 0; i < 10; i++ {
		got, err := p.Call(context.Background(), "UserService", "Add", []string{"int", "int"}, i, i)
		require.NoError(t, err)
		assert.Equal(t, json.Number(fmt.Sprint(2*i)), got)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestProxyConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep, err := registry.ParseEndpoint(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	ctrl := gomock.NewController(t)
	d := mocks.NewMockDiscovery(ctrl)
	d.EXPECT().Lookup(gomock.Any(), "UserService").Return(ep, nil)
	p := NewProxy(d)
	defer p.Close()

	_, err = p.Call(context.Background(), "UserService", "Add", []string{"int", "int"}, 1, 2)
	assert.Error(t, err)
}

func TestNewRequestID(t *testing.T) {
	seen := make(map[uint64]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := newRequestID()
		require.NotZero(t, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}
