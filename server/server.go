// Package server implements a pixie-compatible request/reply server with
// named handlers, a middleware chain, optional registry advertisement and
// graceful shutdown.
//
// Request processing pipeline:
//
//	Recv → Codec.Decode → Middleware Chain → dispatch (handlers[name]) → Codec.Encode → Send
//
// A REP socket must answer every request before it can read the next one, so
// requests are served strictly one after another and every request gets a
// reply, even a malformed one.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pixie-rpc/codec"
	"pixie-rpc/message"
	"pixie-rpc/middleware"
	"pixie-rpc/registry"
	"pixie-rpc/transport"

	"github.com/go-zeromq/zmq4"
	"github.com/phuslu/log"
)

// Reply codes the server itself produces.
const (
	CodeBadRequest     = 400
	CodeUnknownRequest = 404
	CodeInternal       = 500
)

// HandlerFunc serves one request name. The returned value becomes the reply's
// "data" field. Returning *Error sets both "error" and "code".
type HandlerFunc func(ctx context.Context, req message.Request) (any, error)

// Error is a handler failure with a reply code.
type Error struct {
	Message string
	Code    any
}

func (e *Error) Error() string {
	return e.Message
}

// PropertySetter stores configuration properties such as pixie.connect.
type PropertySetter interface {
	SetProperty(ctx context.Context, key, value string) error
}

// Server answers pixie requests on a REP socket.
type Server struct {
	handlers    map[string]HandlerFunc
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))
	codec       codec.Codec
	logger      *log.Logger

	mu       sync.Mutex
	sock     zmq4.Socket
	cancel   context.CancelFunc
	addr     string
	wg       sync.WaitGroup // tracks the serve loop for graceful shutdown
	shutdown atomic.Bool

	registry      registry.Registry
	properties    PropertySetter
	advertiseAddr string // routable address, unlike a wildcard listen address
	ttl           int64
}

// NewServer creates a server with no handlers. A nil codec means msgpack,
// a nil logger means log.DefaultLogger.
func NewServer(cdc codec.Codec, logger *log.Logger) *Server {
	if cdc == nil {
		cdc = &codec.MsgpackCodec{}
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		codec:    cdc,
		logger:   logger,
	}
}

// Handle registers fn for requests named name. It must be called before Serve.
func (svr *Server) Handle(name string, fn HandlerFunc) {
	svr.handlers[name] = fn
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Advertise makes Serve register the server under registry.PixieService and,
// when props is set, publish addr as pixie.connect. Either may be nil.
func (svr *Server) Advertise(reg registry.Registry, props PropertySetter, addr string, ttl int64) {
	svr.registry = reg
	svr.properties = props
	svr.advertiseAddr = addr
	svr.ttl = ttl
}

// Listen binds the REP socket. Port 0 picks a free port; Addr reports it.
func (svr *Server) Listen(endpoint string) error {
	endpoint = transport.NormalizeEndpoint(endpoint)

	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		cancel()
		return fmt.Errorf("listen %s: %w", endpoint, err)
	}

	svr.mu.Lock()
	svr.sock = sock
	svr.cancel = cancel
	svr.addr = transport.NormalizeEndpoint(sock.Addr().String())
	svr.mu.Unlock()

	svr.logger.Info().Str("endpoint", svr.addr).Msg("pixie server listening")
	return nil
}

// Addr returns the bound endpoint, or "" before Listen.
func (svr *Server) Addr() string {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	return svr.addr
}

// ListenAndServe is Listen followed by Serve.
func (svr *Server) ListenAndServe(ctx context.Context, endpoint string) error {
	if err := svr.Listen(endpoint); err != nil {
		return err
	}
	return svr.Serve(ctx)
}

// Serve answers requests until ctx is done or Shutdown is called. It returns
// nil on a requested stop.
func (svr *Server) Serve(ctx context.Context) error {
	svr.mu.Lock()
	sock := svr.sock
	svr.mu.Unlock()
	if sock == nil {
		return errors.New("server is not listening")
	}

	// Build the middleware chain once at startup, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	svr.wg.Add(1)
	defer svr.wg.Done()

	if err := svr.advertise(ctx); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		svr.shutdown.Store(true)
		svr.closeSocket()
	})
	defer stop()

	for {
		msg, err := sock.Recv()
		if err != nil {
			// closing the socket is how a stop is delivered
			if svr.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		var body []byte
		if len(msg.Frames) > 0 {
			body = msg.Frames[0]
		}
		if err := sock.Send(zmq4.NewMsg(svr.handleRequest(ctx, body))); err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("send: %w", err)
		}
	}
}

// handleRequest decodes one request, runs it through the chain and encodes the reply.
func (svr *Server) handleRequest(ctx context.Context, body []byte) []byte {
	var reply *message.Reply

	var req message.Request
	if err := svr.codec.Decode(body, &req); err != nil {
		reply = message.NewErrorReply("malformed request: "+err.Error(), CodeBadRequest)
	} else if err := req.Validate(); err != nil {
		reply = message.NewErrorReply(err.Error(), CodeBadRequest)
	} else {
		reply, err = svr.handler(ctx, req)
		if err != nil {
			reply = errorReply(err)
		}
	}

	out, err := svr.codec.Encode(reply.Fields)
	if err != nil {
		svr.logger.Error().Err(err).Msg("failed to encode reply")
		// the peer is waiting, so it still gets an answer
		out, _ = svr.codec.Encode(message.NewErrorReply("failed to encode reply", CodeInternal).Fields)
	}
	return out
}

// dispatch is the innermost handler of the chain.
func (svr *Server) dispatch(ctx context.Context, req message.Request) (*message.Reply, error) {
	fn, ok := svr.handlers[req.Name()]
	if !ok {
		return message.NewErrorReply(fmt.Sprintf("unknown request %q", req.Name()), CodeUnknownRequest), nil
	}
	data, err := fn(ctx, req)
	if err != nil {
		return errorReply(err), nil
	}
	return message.NewDataReply(data), nil
}

func errorReply(err error) *message.Reply {
	var e *Error
	if errors.As(err, &e) {
		return message.NewErrorReply(e.Message, e.Code)
	}
	return message.NewErrorReply(err.Error(), nil)
}

func (svr *Server) advertise(ctx context.Context) error {
	if svr.advertiseAddr == "" {
		return nil
	}
	if svr.registry != nil {
		inst := registry.ServiceInstance{Addr: svr.advertiseAddr, Weight: 1}
		if err := svr.registry.Register(ctx, registry.PixieService, inst, svr.ttl); err != nil {
			return fmt.Errorf("register %s: %w", registry.PixieService, err)
		}
	}
	if svr.properties != nil {
		if err := svr.properties.SetProperty(ctx, registry.PropertyConnect, svr.advertiseAddr); err != nil {
			return fmt.Errorf("set %s: %w", registry.PropertyConnect, err)
		}
	}
	svr.logger.Info().Str("addr", svr.advertiseAddr).Msg("pixie server advertised")
	return nil
}

func (svr *Server) closeSocket() {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.sock != nil {
		_ = svr.sock.Close()
		svr.cancel()
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry, so clients stop picking this server
//  2. Set the shutdown flag, so the Recv error is recognised as intentional
//  3. Close the socket
//  4. Wait for the serve loop to return (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil && svr.advertiseAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := svr.registry.Deregister(ctx, registry.PixieService, svr.advertiseAddr)
		cancel()
		if err != nil {
			svr.logger.Warn().Err(err).Str("addr", svr.advertiseAddr).Msg("deregister failed")
		}
	}

	svr.shutdown.Store(true)
	svr.closeSocket()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for the serve loop to finish")
	}
}
