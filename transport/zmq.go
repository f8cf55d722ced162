package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/phuslu/log"
)

// ZMQDialer opens ZeroMQ REQ sockets.
type ZMQDialer struct {
	opts   Options
	logger *log.Logger
}

// NewZMQDialer creates a dialer. A nil logger falls back to log.DefaultLogger.
func NewZMQDialer(opts Options, logger *log.Logger) *ZMQDialer {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &ZMQDialer{opts: opts, logger: logger}
}

func (d *ZMQDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	endpoint = NormalizeEndpoint(endpoint)
	if endpoint == "" {
		return nil, &TransportError{Op: "connect", Err: errors.New("empty endpoint")}
	}

	// The socket outlives the dial context, so it gets its own.
	sockCtx, cancel := context.WithCancel(context.Background())
	opts := []zmq4.Option{}
	if d.opts.ConnectTimeout > 0 {
		opts = append(opts, zmq4.WithDialerTimeout(d.opts.ConnectTimeout))
	}
	if d.opts.SendTimeout > 0 {
		opts = append(opts, zmq4.WithTimeout(d.opts.SendTimeout))
	}

	s := &zmqSocket{
		sock:     zmq4.NewReq(sockCtx, opts...),
		cancel:   cancel,
		endpoint: endpoint,
		opts:     d.opts,
		closed:   make(chan struct{}),
	}

	if d.opts.HighWaterMark > 0 {
		if err := s.sock.SetOption(zmq4.OptionHWM, d.opts.HighWaterMark); err != nil {
			d.logger.Warn().Err(err).Int("hwm", d.opts.HighWaterMark).Msg("socket high-water mark not applied")
		}
	}

	if err := s.run(ctx, d.opts.ConnectTimeout, func() error { return s.sock.Dial(endpoint) }); err != nil {
		_ = s.Close()
		return nil, &TransportError{Op: "connect", Endpoint: endpoint, Err: err}
	}

	d.logger.Debug().Str("endpoint", endpoint).Msg("socket connected")
	return s, nil
}

// zmqSocket adapts a zmq4 REQ socket to Socket, adding per-operation timeouts
// and context cancellation. Any interrupted operation closes the socket.
type zmqSocket struct {
	sock      zmq4.Socket
	cancel    context.CancelFunc
	endpoint  string
	opts      Options
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *zmqSocket) Send(ctx context.Context, data []byte) error {
	err := s.run(ctx, s.opts.SendTimeout, func() error {
		return s.sock.Send(zmq4.NewMsg(data))
	})
	if err != nil {
		_ = s.Close()
		return &TransportError{Op: "send", Endpoint: s.endpoint, Err: err}
	}
	return nil
}

func (s *zmqSocket) Recv(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.run(ctx, s.opts.RecvTimeout, func() error {
		msg, err := s.sock.Recv()
		if err != nil {
			return err
		}
		// Only the first frame is the reply body.
		if len(msg.Frames) > 0 {
			data = msg.Frames[0]
		}
		return nil
	})
	if err != nil {
		_ = s.Close()
		return nil, &TransportError{Op: "recv", Endpoint: s.endpoint, Err: err}
	}
	return data, nil
}

func (s *zmqSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.sock.Close()
		s.cancel()
	})
	return err
}

// run executes fn, giving up when the timeout fires, ctx is done or the socket
// is closed underneath it.
func (s *zmqSocket) run(ctx context.Context, timeout time.Duration, fn func() error) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	result := make(chan error, 1)
	go func() {
		result <- fn()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-result:
		return err
	case <-timeoutCh:
		_ = s.Close()
		return ErrTimeout
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}
