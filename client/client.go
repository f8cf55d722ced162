// Package client implements the pixie messaging client.
//
// Every call goes through one single-concurrency queue. A queued job covers the
// whole round trip: connect if needed, encode, send, receive, decode. Because
// the underlying REQ socket is strictly request-then-reply, widening the job to
// the full exchange is what guarantees that a reply is handed to the caller
// whose request produced it.
//
//	Communicate ─→ middleware chain ─→ queue.Do ─→ ensure connected ─→ Send ─→ Recv ─→ decode
//	                                                                    │ transport error
//	                                                                    └─→ Faulted, socket closed
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"pixie-rpc/codec"
	"pixie-rpc/config"
	"pixie-rpc/loadbalance"
	"pixie-rpc/message"
	"pixie-rpc/middleware"
	"pixie-rpc/queue"
	"pixie-rpc/registry"
	"pixie-rpc/transport"

	"github.com/VictoriaMetrics/metrics"
	"github.com/phuslu/log"
)

// Deps are the collaborators a Client is built from. Only Server (or a static
// endpoint in the config) is required; everything else has a default.
type Deps struct {
	// Server answers status and the pixie.connect property.
	Server registry.Server
	// Discovery lists pixie instances when the server has no pixie.connect.
	Discovery registry.Registry
	Balancer  loadbalance.Balancer
	Dialer    transport.Dialer
	Codec     codec.Codec
	Logger    *log.Logger
	// Metrics enables the metrics middleware when set.
	Metrics *metrics.Set
}

// Client is a pixie connection. It is safe for concurrent use; calls are
// executed one at a time in the order they were issued.
type Client struct {
	cfg       config.Client
	server    registry.Server
	discovery registry.Registry
	balancer  loadbalance.Balancer
	dialer    transport.Dialer
	codec     codec.Codec
	logger    *log.Logger

	queue   *queue.Queue
	handler middleware.HandlerFunc

	mu       sync.Mutex // guards socket, endpoint, closed and state transitions
	socket   transport.Socket
	endpoint string
	closed   bool
	state    atomic.Int32
}

// New builds a client. It does not connect; the first call (or EnsureConnected) does.
func New(cfg config.Client, deps Deps) *Client {
	c := &Client{
		cfg:       cfg,
		server:    deps.Server,
		discovery: deps.Discovery,
		balancer:  deps.Balancer,
		dialer:    deps.Dialer,
		codec:     deps.Codec,
		logger:    deps.Logger,
	}

	if c.logger == nil {
		c.logger = &log.DefaultLogger
	}
	if c.codec == nil {
		c.codec = &codec.MsgpackCodec{}
	}
	if c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	opts := socketOptions(cfg)
	if c.dialer == nil {
		c.dialer = transport.NewZMQDialer(opts, c.logger)
	}
	c.queue = queue.New(opts.HighWaterMark)

	// Logging and metrics see the final outcome, the retry loop sits inside
	// them and the per-attempt limits sit inside the retry loop.
	mws := []middleware.Middleware{middleware.LoggingMiddleware(c.logger)}
	if deps.Metrics != nil {
		mws = append(mws, middleware.MetricsMiddleware(deps.Metrics))
	}
	if cfg.CallTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.CallTimeout))
	}
	if cfg.RetryCount > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.RetryCount, cfg.RetryBackoff, c.logger))
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	c.handler = middleware.Chain(mws...)(c.roundTrip)

	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether a socket is established.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Endpoint returns the address of the current (or last) connection.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Pending returns the number of calls waiting behind the one in flight.
func (c *Client) Pending() int {
	return c.queue.Len()
}

// EnsureConnected connects unless already connected. It fails with
// ErrNotConnected when no address can be resolved, without dialing.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.closed {
		return queue.ErrClosed
	}
	if c.State() == StateConnected && c.socket != nil {
		return nil
	}
	prev := c.State()
	c.state.Store(int32(StateConnecting))

	addr, err := c.resolve(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}

	c.logger.Info().Str("endpoint", addr).Str("from", prev.String()).Msg("connecting pixie")
	sock, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if !transport.IsTransportError(err) {
			err = &transport.TransportError{Op: "connect", Endpoint: addr, Err: err}
		}
		return err
	}

	c.socket = sock
	c.endpoint = addr
	c.state.Store(int32(StateConnected))
	return nil
}

// fault drops sock after a transport error, unless it was already replaced.
func (c *Client) fault(sock transport.Socket, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket != sock {
		return
	}
	_ = sock.Close()
	c.socket = nil
	c.state.Store(int32(StateFaulted))
	c.logger.Warn().Str("endpoint", c.endpoint).Err(err).Msg("pixie connection faulted")
}

// Communicate sends req and returns the decoded reply. A reply carrying an
// "error" field is returned as *RemoteError instead.
func (c *Client) Communicate(ctx context.Context, req message.Request) (*message.Reply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reply, err := c.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if msg, code, failed := reply.Error(); failed {
		return nil, &RemoteError{Message: msg, Code: normalizeCode(code)}
	}
	return reply, nil
}

// roundTrip runs one exchange as a single queue job.
func (c *Client) roundTrip(ctx context.Context, req message.Request) (*message.Reply, error) {
	var reply *message.Reply
	err := c.queue.Do(ctx, func(ctx context.Context) error {
		r, err := c.exchange(ctx, req)
		reply = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) exchange(ctx context.Context, req message.Request) (*message.Reply, error) {
	payload, err := c.codec.Encode(map[string]any(req))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Name(), err)
	}

	c.mu.Lock()
	err = c.connectLocked(ctx)
	sock, endpoint := c.socket, c.endpoint
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := sock.Send(ctx, payload); err != nil {
		err = asTransportError("send", endpoint, err)
		c.fault(sock, err)
		return nil, err
	}

	raw, err := sock.Recv(ctx)
	if err != nil {
		err = asTransportError("recv", endpoint, err)
		c.fault(sock, err)
		return nil, err
	}

	// The exchange itself completed, so a bad payload leaves the socket usable.
	var fields map[string]any
	if err := c.codec.Decode(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", req.Name(), err)
	}
	return &message.Reply{Fields: fields, Raw: raw}, nil
}

// Close closes the socket and stops the queue. The call in flight fails with a
// transport error, waiting calls fail with queue.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	var err error
	if c.socket != nil {
		err = c.socket.Close()
		c.socket = nil
	}
	c.state.Store(int32(StateDisconnected))
	c.mu.Unlock()

	c.queue.Close()

	return err
}

// socketOptions fills unset socket settings from transport.DefaultOptions.
func socketOptions(cfg config.Client) transport.Options {
	opts := transport.DefaultOptions()
	if cfg.ConnectTimeout > 0 {
		opts.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.SendTimeout > 0 {
		opts.SendTimeout = cfg.SendTimeout
	}
	if cfg.RecvTimeout > 0 {
		opts.RecvTimeout = cfg.RecvTimeout
	}
	if cfg.HighWaterMark > 0 {
		opts.HighWaterMark = cfg.HighWaterMark
	}
	return opts
}

// asTransportError wraps socket failures, including context cancellation: an
// interrupted exchange breaks the socket's alternation just like a network fault.
func asTransportError(op, endpoint string, err error) error {
	if transport.IsTransportError(err) {
		return err
	}
	return &transport.TransportError{Op: op, Endpoint: endpoint, Err: err}
}
