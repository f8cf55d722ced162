package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixie-rpc/message"
)

var ErrTimeout = errors.New("request timed out")

// TimeOutMiddleware bounds each call. When the deadline it set is what stopped
// the call, the error wraps ErrTimeout; a caller's own cancellation passes through.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (*message.Reply, error) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			reply, err := next(callCtx, req)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
			}
			return reply, err
		}
	}
}
