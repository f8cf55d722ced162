package middleware

import (
	"context"

	"pixie-rpc/message"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware paces calls with a token bucket. Callers wait for a token
// instead of being rejected; the wait honours ctx.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (*message.Reply, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}
