package middleware

import (
	"context"
	"fmt"
	"time"

	"pixie-rpc/message"
	"pixie-rpc/transport"

	"github.com/VictoriaMetrics/metrics"
)

// MetricsMiddleware records per-request-name counts and latency into set:
//
//	pixie_requests_total{name="..."}
//	pixie_request_errors_total{name="...",kind="transport|remote|other"}
//	pixie_request_duration_seconds{name="..."}
func MetricsMiddleware(set *metrics.Set) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) (*message.Reply, error) {
			name := req.Name()
			start := time.Now()
			reply, err := next(ctx, req)

			set.GetOrCreateCounter(fmt.Sprintf(`pixie_requests_total{name=%q}`, name)).Inc()
			set.GetOrCreateHistogram(fmt.Sprintf(`pixie_request_duration_seconds{name=%q}`, name)).UpdateDuration(start)

			kind := ""
			switch {
			case err != nil && transport.IsTransportError(err):
				kind = "transport"
			case err != nil:
				kind = "other"
			default:
				if _, _, failed := reply.Error(); failed {
					kind = "remote"
				}
			}
			if kind != "" {
				set.GetOrCreateCounter(fmt.Sprintf(`pixie_request_errors_total{name=%q,kind=%q}`, name, kind)).Inc()
			}
			return reply, err
		}
	}
}
