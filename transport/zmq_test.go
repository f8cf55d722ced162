package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/phuslu/log"
	"github.com/stretchr/testify/require"
)

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

// startRep listens on a random loopback port and answers each request with handle(req).
// A nil handle never replies.
func startRep(t *testing.T, handle func([]byte) []byte) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rep := zmq4.NewRep(ctx)
	t.Cleanup(func() {
		_ = rep.Close()
		cancel()
	})
	require.NoError(t, rep.Listen("tcp://127.0.0.1:0"))

	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			if handle == nil {
				continue
			}
			if err := rep.Send(zmq4.NewMsg(handle(msg.Frames[0]))); err != nil {
				return
			}
		}
	}()

	return rep.Addr().String()
}

func TestZMQRoundTrip(t *testing.T) {
	addr := startRep(t, func(req []byte) []byte {
		return append([]byte("echo:"), req...)
	})

	d := NewZMQDialer(DefaultOptions(), quietLogger)
	s, err := d.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer s.Close()

	// serial alternation on one socket
	for _, body := range []string{"a", "bb", "ccc"} {
		require.NoError(t, s.Send(context.Background(), []byte(body)))
		got, err := s.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, "echo:"+body, string(got))
	}
}

func TestZMQRecvTimeoutClosesSocket(t *testing.T) {
	addr := startRep(t, nil)

	opts := DefaultOptions()
	opts.RecvTimeout = 100 * time.Millisecond
	d := NewZMQDialer(opts, quietLogger)

	s, err := d.Dial(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), []byte("hello")))
	_, err = s.Recv(context.Background())
	require.Error(t, err)
	require.True(t, IsTransportError(err))
	require.ErrorIs(t, err, ErrTimeout)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "recv", te.Op)

	// the socket is unusable afterwards
	err = s.Send(context.Background(), []byte("again"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestZMQRecvContextCancel(t *testing.T) {
	addr := startRep(t, nil)

	d := NewZMQDialer(DefaultOptions(), quietLogger)
	s, err := d.Dial(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), []byte("hello")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, IsTransportError(err))
}

func TestZMQDialFailure(t *testing.T) {
	// grab a free port, then release it so nothing is listening there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	opts := DefaultOptions()
	opts.ConnectTimeout = 200 * time.Millisecond
	d := NewZMQDialer(opts, quietLogger)

	_, err = d.Dial(context.Background(), addr)
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "connect", te.Op)
	require.Equal(t, "tcp://"+addr, te.Endpoint)
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:7006":       "tcp://127.0.0.1:7006",
		"tcp://127.0.0.1:7006": "tcp://127.0.0.1:7006",
		"ipc:///tmp/pixie":     "ipc:///tmp/pixie",
		"  localhost:1 ":       "tcp://localhost:1",
		"":                     "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeEndpoint(in), in)
	}

	_, err := NewZMQDialer(DefaultOptions(), nil).Dial(context.Background(), "")
	require.True(t, IsTransportError(err))
}
