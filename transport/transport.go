// Package transport implements the request/reply socket the pixie client talks over.
//
// The socket is strictly alternating: one Send must be followed by one Recv before
// the next Send is meaningful. Nothing here serializes callers; that is the job of
// the client's queue. What this package does guarantee is that a socket whose
// alternation was broken (timeout, cancellation, network fault) is closed and
// reported as a *TransportError, so the caller knows to dial a fresh one.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout = errors.New("i/o timeout")
	ErrClosed  = errors.New("socket closed")
)

// Socket is one established request/reply connection.
type Socket interface {
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens sockets. Implementations must be safe for concurrent use.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// TransportError wraps any failure of the underlying socket.
type TransportError struct {
	Op       string // "connect", "send" or "recv"
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// NormalizeEndpoint prepends tcp:// to bare host:port addresses.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "tcp://" + endpoint
}

// Options configures socket timeouts.
type Options struct {
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	RecvTimeout    time.Duration
	// HighWaterMark bounds the messages buffered by the socket.
	HighWaterMark int
}

// DefaultOptions returns the timeouts pixie peers are tuned for.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 5 * time.Second,
		SendTimeout:    5 * time.Second,
		RecvTimeout:    30 * time.Second,
		HighWaterMark:  1000,
	}
}
