package middleware

import (
	"context"
	"math/rand"
	"time"

	"pixie-rpc/message"
	"pixie-rpc/transport"

	"github.com/phuslu/log"
)

// RetryMiddleware retries transport failures with exponential backoff and
// +-10% jitter. Remote errors and everything else return immediately.
// maxRetries counts the extra attempts, not the first one.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (*message.Reply, error) {
			reply, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !transport.IsTransportError(err) {
					return reply, err
				}

				jitter := float64(baseDelay) * (0.9 + 0.2*rand.Float64())
				delay := time.Duration(jitter) * time.Duration(1<<i)
				logger.Info().Int("attempt", i+1).Str("name", req.Name()).Dur("backoff", delay).Err(err).Msg("retrying request")

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}

				reply, err = next(ctx, req)
			}
			return reply, err
		}
	}
}
