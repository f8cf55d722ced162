package middleware

import (
	"context"
	"time"

	"pixie-rpc/message"

	"github.com/phuslu/log"
)

func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (*message.Reply, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.Warn().Str("name", req.Name()).Dur("duration", duration).Err(err).Msg("request failed")
				return reply, err
			}
			if msg, _, failed := reply.Error(); failed {
				logger.Info().Str("name", req.Name()).Dur("duration", duration).Str("error", msg).Msg("request answered with error")
				return reply, nil
			}
			logger.Debug().Str("name", req.Name()).Dur("duration", duration).Msg("request done")
			return reply, nil
		}
	}
}
