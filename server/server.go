// Package server implements the RPC server: publishing services, accepting
// connections, and dispatching requests through the middleware chain.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → middleware chain → businessHandler (dispatch table + reflect.Call) → write response
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"light-rpc/codec"
	"light-rpc/discovery"
	"light-rpc/internal/errs"
	"light-rpc/message"
	"light-rpc/middleware"
	"light-rpc/protocol"
	"light-rpc/registry"
)

const DefaultRegisterTimeout = 30 * time.Second

type Server struct {
	local       *LocalRegistry
	listener    net.Listener
	wg          sync.WaitGroup // in-flight requests
	shutdown    atomic.Bool
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	handlerOnce sync.Once

	discovery discovery.Discovery // nil when running without discovery
	advertise registry.Endpoint   // what other processes dial, not the listen address
	mu        sync.Mutex
	published []string // names announced to discovery
	conns     map[net.Conn]struct{}

	readIdleTimeout time.Duration
	logger          *zap.Logger

	ctx    context.Context // parent of every request context
	cancel context.CancelFunc
}

// ServerWithDiscovery makes Publish announce services at advertise.
func ServerWithDiscovery(d discovery.Discovery, advertise registry.Endpoint) option.Option[Server] {
	return func(s *Server) {
		s.discovery = d
		s.advertise = advertise
	}
}

func ServerWithLocalRegistry(r *LocalRegistry) option.Option[Server] {
	return func(s *Server) {
		s.local = r
	}
}

func ServerWithMiddleware(mws ...middleware.Middleware) option.Option[Server] {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

// ServerWithReadIdleTimeout closes connections that send nothing, heartbeats
// included, for the given duration. Zero keeps idle connections open.
func ServerWithReadIdleTimeout(d time.Duration) option.Option[Server] {
	return func(s *Server) {
		s.readIdleTimeout = d
	}
}

func ServerWithLogger(logger *zap.Logger) option.Option[Server] {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(opts ...option.Option[Server]) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		local:  NewLocalRegistry(),
		conns:  make(map[net.Conn]struct{}),
		logger: zap.L(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use appends a middleware. Middlewares must be added before serving starts.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Publish binds impl to serviceName locally and, when discovery is
// configured, announces this server as a provider. A registration that still
// fails after the discovery's retries is returned; the local binding stays.
func (svr *Server) Publish(serviceName string, impl any) error {
	if err := svr.local.Register(serviceName, impl); err != nil {
		return err
	}
	svc, _ := svr.local.Get(serviceName)
	svr.logger.Info("service published",
		zap.String("service", serviceName), zap.Strings("methods", svc.Methods()))
	if svr.discovery == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRegisterTimeout)
	defer cancel()
	if err := svr.discovery.Register(ctx, serviceName, svr.advertise); err != nil {
		svr.logger.Error("service registration failed",
			zap.String("service", serviceName), zap.String("endpoint", svr.advertise.Addr()), zap.Error(err))
		return err
	}
	svr.mu.Lock()
	svr.published = append(svr.published, serviceName)
	svr.mu.Unlock()
	return nil
}

// Serve listens on address and blocks in the accept loop.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener blocks accepting connections on l. It returns nil after
// Shutdown, and the accept error otherwise. Either way the listener is
// closed when it returns.
func (svr *Server) ServeListener(l net.Listener) error {
	svr.handlerOnce.Do(func() {
		svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
	})
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		_ = l.Close()
		return errs.ErrServerClosed
	}
	svr.listener = l
	svr.mu.Unlock()
	svr.logger.Info("server listening", zap.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			_ = l.Close()
			svr.closeConns()
			svr.logger.Error("accept failed, server stopped", zap.Error(err))
			return err
		}
		if !svr.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listening address, or nil before serving.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) trackConn(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrackConn(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
}

func (svr *Server) closeConns() {
	svr.mu.Lock()
	conns := svr.conns
	svr.conns = make(map[net.Conn]struct{})
	svr.mu.Unlock()
	for conn := range conns {
		_ = conn.Close()
	}
}

// handleConn is the single reader of conn. Requests are dispatched to their
// own goroutines and share writeMu so response frames never interleave.
func (svr *Server) handleConn(conn net.Conn) {
	defer func() {
		svr.untrackConn(conn)
		_ = conn.Close()
	}()
	remote := zap.String("remote", conn.RemoteAddr().String())
	svr.logger.Debug("connection accepted", remote)

	var src io.Reader = conn
	if svr.readIdleTimeout > 0 {
		src = &idleReader{conn: conn, idle: svr.readIdleTimeout}
	}
	r := bufio.NewReader(src)
	writeMu := &sync.Mutex{}
	for {
		msg, err := codec.DecodeMessage(r)
		if err != nil {
			if errors.Is(err, errs.ErrMalformedBody) {
				svr.logger.Warn("malformed frame body", remote, zap.Error(err))
				if msg.MessageType == protocol.MsgTypeRequest {
					svr.reply(conn, writeMu, msg, &message.Response{
						RequestID: msg.RequestID,
						Code:      message.CodeFailure,
						Message:   err.Error(),
					})
				}
				continue
			}
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				svr.logger.Info("closing idle connection", remote, zap.Duration("idle", svr.readIdleTimeout))
			case protocol.IsProtocolError(err):
				svr.logger.Warn("protocol error, closing connection", remote, zap.Error(err))
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				svr.logger.Debug("connection closed", remote)
			default:
				svr.logger.Warn("read failed, closing connection", remote, zap.Error(err))
			}
			return
		}

		switch msg.MessageType {
		case protocol.MsgTypeHeartbeat:
			// only refreshes the idle deadline
		case protocol.MsgTypeRequest:
			if !svr.admit() {
				continue
			}
			go svr.handleRequest(conn, writeMu, msg)
		default:
			svr.logger.Warn("unexpected message from client", remote,
				zap.Stringer("type", msg.MessageType), zap.Uint64("requestId", msg.RequestID))
		}
	}
}

// idleReader pushes the read deadline forward before every read, so the
// connection only times out after a full window with no inbound bytes.
type idleReader struct {
	conn net.Conn
	idle time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.idle)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

// admit counts a request as in flight unless shutdown has begun. Taking mu
// orders every Add before the Wait in Shutdown.
func (svr *Server) admit() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// handleRequest runs one request through the middleware chain and writes the
// reply under the connection's write lock.
func (svr *Server) handleRequest(conn net.Conn, writeMu *sync.Mutex, msg *message.Message) {
	defer svr.wg.Done()

	req, ok := msg.Data.(*message.Request)
	if !ok {
		if _, known := codec.GetCodec(msg.Codec); !known {
			// no codec to encode a reply with
			svr.logger.Warn("request with unknown codec dropped",
				zap.Uint64("requestId", msg.RequestID), zap.Uint8("codec", uint8(msg.Codec)))
			return
		}
		svr.reply(conn, writeMu, msg, &message.Response{
			RequestID: msg.RequestID,
			Code:      message.CodeFailure,
			Message:   "light-rpc: empty request body",
		})
		return
	}
	// the frame header is authoritative for correlation
	req.RequestID = msg.RequestID

	c, _ := codec.GetCodec(msg.Codec)
	ctx := middleware.WithInFlight(withCodec(svr.ctx, c), &svr.wg)
	resp := svr.safeHandle(ctx, req)
	resp.RequestID = msg.RequestID
	svr.reply(conn, writeMu, msg, resp)
}

// safeHandle keeps a panicking middleware from taking the process down.
func (svr *Server) safeHandle(ctx context.Context, req *message.Request) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			svr.logger.Error("panic while handling request",
				zap.String("service", req.InterfaceName), zap.String("method", req.MethodName), zap.Any("panic", r))
			resp = failed(req, fmt.Errorf("light-rpc: panic: %v", r))
		}
	}()
	resp = svr.handler(ctx, req)
	if resp == nil {
		resp = failed(req, errors.New("light-rpc: handler returned no response"))
	}
	return resp
}

func (svr *Server) reply(conn net.Conn, writeMu *sync.Mutex, reqMsg *message.Message, resp *message.Response) {
	var buf bytes.Buffer
	if err := codec.EncodeMessage(&buf, message.NewResponseMessage(reqMsg, resp)); err != nil {
		svr.logger.Error("encode response failed", zap.Uint64("requestId", reqMsg.RequestID), zap.Error(err))
		// the payload is what failed to encode, report that instead
		buf.Reset()
		fallback := &message.Response{RequestID: resp.RequestID, Code: message.CodeFailure, Message: err.Error()}
		if err = codec.EncodeMessage(&buf, message.NewResponseMessage(reqMsg, fallback)); err != nil {
			return
		}
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if _, err := conn.Write(buf.Bytes()); err != nil {
		svr.logger.Warn("write response failed",
			zap.String("remote", conn.RemoteAddr().String()), zap.Uint64("requestId", reqMsg.RequestID), zap.Error(err))
	}
}

// Shutdown stops the server gracefully:
//  1. deregister published services so proxies stop picking this server
//  2. close the listener
//  3. wait up to timeout for in-flight requests
//  4. close every connection and cancel request contexts
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		return errs.ErrServerClosed
	}
	svr.shutdown.Store(true)
	published := svr.published
	svr.published = nil
	listener := svr.listener
	svr.mu.Unlock()

	if svr.discovery != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		for _, name := range published {
			if err := svr.discovery.Deregister(ctx, name, svr.advertise); err != nil {
				svr.logger.Warn("service deregistration failed", zap.String("service", name), zap.Error(err))
			}
		}
		cancel()
	}

	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("light-rpc: timeout waiting for ongoing requests to finish")
	}
	svr.closeConns()
	svr.cancel()
	svr.logger.Info("server stopped")
	return err
}

// businessHandler is the innermost handler: it resolves the dispatch target,
// binds the arguments and invokes the implementation.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	svc, ok := svr.local.Get(req.InterfaceName)
	if !ok {
		return failed(req, fmt.Errorf("%w: %s", errs.ErrServiceNotFound, req.InterfaceName))
	}
	if len(req.ParamTypes) != len(req.Parameters) {
		return failed(req, fmt.Errorf("%w: %d parameter types for %d parameters",
			errs.ErrArgumentMismatch, len(req.ParamTypes), len(req.Parameters)))
	}
	mt, err := svc.lookup(req.MethodName, req.ParamTypes)
	if err != nil {
		return failed(req, err)
	}
	args, err := mt.bind(codecFrom(ctx), req.Parameters)
	if err != nil {
		return failed(req, err)
	}
	result, err := svc.call(ctx, mt, args)
	if err != nil {
		svr.logger.Warn("service method failed",
			zap.String("service", req.InterfaceName), zap.String("method", req.MethodName), zap.Error(err))
		return failed(req, err)
	}
	return &message.Response{
		RequestID: req.RequestID,
		Code:      message.CodeSuccess,
		Message:   "Success",
		Data:      result,
	}
}

func failed(req *message.Request, err error) *message.Response {
	return &message.Response{
		RequestID: req.RequestID,
		Code:      message.CodeFailure,
		Message:   err.Error(),
	}
}

type codecKey struct{}

func withCodec(ctx context.Context, c codec.Codec) context.Context {
	return context.WithValue(ctx, codecKey{}, c)
}

func codecFrom(ctx context.Context) codec.Codec {
	if c, ok := ctx.Value(codecKey{}).(codec.Codec); ok {
		return c
	}
	c, _ := codec.GetCodec(protocol.CodecTypeJSON)
	return c
}
