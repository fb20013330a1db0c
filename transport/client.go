// Package transport implements the client side of a light-rpc connection.
//
// A Client owns exactly one TCP connection and one PendingTable. Many
// goroutines may send over it at once: each request is registered under its
// id before the frame is written, and a single receive loop routes every
// response back to the Future waiting for it.
//
//	goroutine-1 ──Send(id=a)──┐
//	goroutine-2 ──Send(id=b)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(id=c)──┘
//
//	recvLoop:  ←── response(id=b) → pending[b].complete → goroutine-2 wakes up
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"light-rpc/codec"
	"light-rpc/internal/errs"
	"light-rpc/message"
	"light-rpc/protocol"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultDialTimeout       = 3 * time.Second
)

type Client struct {
	addr    string
	conn    net.Conn
	codec   protocol.CodecType // used for heartbeats, requests carry their own
	pending *PendingTable

	sending   sync.Mutex // frames of different requests must not interleave
	lastWrite atomic.Int64

	heartbeatInterval time.Duration
	dialTimeout       time.Duration
	logger            *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// ClientWithHeartbeat sets the write-idle window after which a heartbeat is
// sent. Zero disables heartbeats.
func ClientWithHeartbeat(interval time.Duration) option.Option[Client] {
	return func(c *Client) {
		c.heartbeatInterval = interval
	}
}

func ClientWithDialTimeout(timeout time.Duration) option.Option[Client] {
	return func(c *Client) {
		c.dialTimeout = timeout
	}
}

func ClientWithLogger(logger *zap.Logger) option.Option[Client] {
	return func(c *Client) {
		c.logger = logger
	}
}

func ClientWithCodec(codecType protocol.CodecType) option.Option[Client] {
	return func(c *Client) {
		c.codec = codecType
	}
}

func newClient(addr string, opts ...option.Option[Client]) *Client {
	c := &Client{
		addr:              addr,
		codec:             protocol.CodecTypeJSON,
		heartbeatInterval: DefaultHeartbeatInterval,
		dialTimeout:       DefaultDialTimeout,
		logger:            zap.L(),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = NewPendingTable(c.logger)
	return c
}

// Dial connects to addr and starts the connection's receive and heartbeat
// loops. A failed connect is returned to the caller, it is never retried here.
func Dial(ctx context.Context, addr string, opts ...option.Option[Client]) (*Client, error) {
	c := newClient(addr, opts...)
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("light-rpc: connect %s: %w", addr, err)
	}
	c.start(conn)
	c.logger.Info("connected to server", zap.String("addr", addr))
	return c, nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts ...option.Option[Client]) *Client {
	c := newClient(conn.RemoteAddr().String(), opts...)
	c.start(conn)
	return c
}

func (c *Client) start(conn net.Conn) {
	c.conn = conn
	c.lastWrite.Store(time.Now().UnixNano())
	go c.recvLoop()
	if c.heartbeatInterval > 0 {
		go c.heartbeatLoop()
	}
}

// Send registers a pending call for msg and writes its frame. The returned
// Future completes when the matching RESPONSE arrives on this connection, or
// fails when the connection breaks first.
func (c *Client) Send(msg *message.Message) (*Future, error) {
	if msg.MessageType != protocol.MsgTypeRequest {
		return nil, fmt.Errorf("light-rpc: send expects a %s message, got %s", protocol.MsgTypeRequest, msg.MessageType)
	}
	if c.closed.Load() {
		return nil, errs.ErrClientClosed
	}

	var buf bytes.Buffer
	if err := codec.EncodeMessage(&buf, msg); err != nil {
		return nil, err
	}

	// Register BEFORE writing so the response cannot race ahead of us
	f, err := c.pending.Register(msg.RequestID)
	if err != nil {
		return nil, err
	}
	if err = c.write(buf.Bytes()); err != nil {
		c.pending.Remove(msg.RequestID)
		c.shutdown(err)
		return nil, fmt.Errorf("light-rpc: send request %d: %w", msg.RequestID, err)
	}
	return f, nil
}

func (c *Client) write(frame []byte) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	c.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// recvLoop is the only reader of the connection: frame boundaries can only
// be found by reading the stream sequentially.
func (c *Client) recvLoop() {
	r := bufio.NewReader(c.conn)
	for {
		msg, err := codec.DecodeMessage(r)
		if err != nil {
			if errors.Is(err, errs.ErrMalformedBody) {
				c.logger.Warn("dropping malformed frame", zap.String("addr", c.addr), zap.Error(err))
				if msg.MessageType == protocol.MsgTypeResponse {
					c.pending.Fail(msg.RequestID, err)
				}
				continue
			}
			if protocol.IsProtocolError(err) {
				c.logger.Warn("protocol error, closing connection", zap.String("addr", c.addr), zap.Error(err))
			}
			c.shutdown(err)
			return
		}

		switch msg.MessageType {
		case protocol.MsgTypeResponse:
			resp, ok := msg.Data.(*message.Response)
			if !ok {
				c.logger.Warn("response without a decodable body",
					zap.Uint64("requestId", msg.RequestID), zap.Uint8("codec", uint8(msg.Codec)))
				c.pending.Fail(msg.RequestID, fmt.Errorf("light-rpc: undecodable response body for codec %d", msg.Codec))
				continue
			}
			c.pending.Complete(resp)
		case protocol.MsgTypeHeartbeat:
			// keep-alive only, never correlated
		default:
			c.logger.Warn("unexpected message from server",
				zap.Stringer("type", msg.MessageType), zap.Uint64("requestId", msg.RequestID))
		}
	}
}

// heartbeatLoop sends a heartbeat whenever nothing has been written for a
// full interval, so idle connections are not dropped by the server or by
// devices in between.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	var buf bytes.Buffer
	_ = codec.EncodeMessage(&buf, message.NewHeartbeat(c.codec))
	heartbeat := buf.Bytes()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, c.lastWrite.Load()))
			if idle < c.heartbeatInterval {
				continue
			}
			if err := c.write(heartbeat); err != nil {
				c.logger.Debug("heartbeat failed", zap.String("addr", c.addr), zap.Error(err))
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.Close()
		if errors.Is(cause, errs.ErrClientClosed) {
			c.pending.FailAll(cause)
		} else {
			c.pending.FailAll(fmt.Errorf("%w: %v", errs.ErrClientClosed, cause))
		}
		close(c.done)
	})
}

// Close tears the connection down and fails every pending call.
func (c *Client) Close() error {
	c.shutdown(errs.ErrClientClosed)
	return nil
}

// IsAvailable reports whether the connection is still open.
func (c *Client) IsAvailable() bool {
	return !c.closed.Load()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Addr() string {
	return c.addr
}

// Pending returns the number of calls waiting for a response.
func (c *Client) Pending() int {
	return c.pending.Len()
}
