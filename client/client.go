// Package client is the caller side of light-rpc. A Proxy turns a call on a
// service name into a request frame: it looks the service up, reuses one
// connection per endpoint, and waits for the correlated response.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"light-rpc/codec"
	"light-rpc/discovery"
	"light-rpc/internal/errs"
	"light-rpc/message"
	"light-rpc/transport"
)

const DefaultTimeout = 5 * time.Second

const instrumentationName = "light-rpc/client"

type Proxy struct {
	discovery discovery.Discovery
	cache     *transport.ConnCache
	ownsCache bool
	codec     codec.Codec
	timeout   time.Duration
	tracer    trace.Tracer
	logger    *zap.Logger
}

// ProxyWithConnCache shares a connection cache between proxies. The proxy
// does not close a cache it was given.
func ProxyWithConnCache(cache *transport.ConnCache) option.Option[Proxy] {
	return func(p *Proxy) {
		p.cache = cache
	}
}

// ProxyWithTimeout bounds calls whose context carries no deadline.
func ProxyWithTimeout(timeout time.Duration) option.Option[Proxy] {
	return func(p *Proxy) {
		p.timeout = timeout
	}
}

func ProxyWithCodec(c codec.Codec) option.Option[Proxy] {
	return func(p *Proxy) {
		p.codec = c
	}
}

func ProxyWithTracer(tracer trace.Tracer) option.Option[Proxy] {
	return func(p *Proxy) {
		p.tracer = tracer
	}
}

func ProxyWithLogger(logger *zap.Logger) option.Option[Proxy] {
	return func(p *Proxy) {
		p.logger = logger
	}
}

func NewProxy(d discovery.Discovery, opts ...option.Option[Proxy]) *Proxy {
	p := &Proxy{
		discovery: d,
		codec:     codec.JSONCodec{},
		timeout:   DefaultTimeout,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if p.cache == nil {
		logger := p.logger
		codecType := p.codec.Type()
		p.cache = transport.NewConnCache(
			transport.ConnCacheWithLogger(logger),
			transport.ConnCacheWithDialer(func(ctx context.Context, addr string) (*transport.Client, error) {
				return transport.Dial(ctx, addr, transport.ClientWithLogger(logger), transport.ClientWithCodec(codecType))
			}))
		p.ownsCache = true
	}
	return p
}

// Invoke sends req to a live provider of req.InterfaceName and waits for the
// response. The request id is assigned here. A response with a failure code
// is returned as is, with a nil error.
func (p *Proxy) Invoke(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
	ctx, span := p.tracer.Start(ctx, req.InterfaceName+"/"+req.MethodName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "light-rpc"),
			attribute.String("rpc.service", req.InterfaceName),
			attribute.String("rpc.method", req.MethodName),
		))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "client failed")
		case !resp.Success():
			span.SetAttributes(attribute.Int("rpc.light.code", resp.Code))
			span.SetStatus(codes.Error, resp.Message)
		default:
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
	}()

	// the deadline covers lookup and connection setup as well as the wait
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ep, err := p.discovery.Lookup(ctx, req.InterfaceName)
	if err != nil {
		if errors.Is(err, errs.ErrNoEndpoint) {
			return nil, fmt.Errorf("%w: %s: %w", errs.ErrServiceNotFound, req.InterfaceName, err)
		}
		return nil, fmt.Errorf("light-rpc: lookup %s: %w", req.InterfaceName, err)
	}
	addr := ep.Addr()
	span.SetAttributes(attribute.String("server.address", addr))

	conn, err := p.cache.Get(ctx, addr)
	if err != nil {
		return nil, err
	}

	req.RequestID = newRequestID()
	span.SetAttributes(attribute.String("rpc.light.request_id", strconv.FormatUint(req.RequestID, 10)))
	f, err := conn.Send(message.NewRequestMessage(p.codec.Type(), req))
	if err != nil {
		return nil, err
	}

	resp, err = f.Get(ctx)
	if err != nil {
		p.logger.Warn("rpc call failed",
			zap.String("service", req.InterfaceName),
			zap.String("method", req.MethodName),
			zap.String("addr", addr),
			zap.Uint64("requestId", req.RequestID),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// Call invokes serviceName.methodName with args described by paramTypes and
// returns the decoded result. A failure reported by the server becomes a
// *RemoteError.
func (p *Proxy) Call(ctx context.Context, serviceName, methodName string, paramTypes []string, args ...any) (any, error) {
	if len(paramTypes) != len(args) {
		return nil, fmt.Errorf("%w: %d parameter types for %d arguments",
			errs.ErrArgumentMismatch, len(paramTypes), len(args))
	}
	resp, err := p.Invoke(ctx, &message.Request{
		InterfaceName: serviceName,
		MethodName:    methodName,
		ParamTypes:    paramTypes,
		Parameters:    args,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &RemoteError{
			Service: serviceName,
			Method:  methodName,
			Code:    resp.Code,
			Message: resp.Message,
		}
	}
	return resp.Data, nil
}

// Close releases the connections opened by this proxy.
func (p *Proxy) Close() error {
	if p.ownsCache {
		return p.cache.Close()
	}
	return nil
}

// newRequestID draws a random non-zero id. Zero is what heartbeats carry.
func newRequestID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}
