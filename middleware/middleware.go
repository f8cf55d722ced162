// Package middleware wraps pixie round trips.
//
// The same HandlerFunc shape is used on both ends: the client wraps its queued
// round trip, the server wraps its request dispatch.
package middleware

import (
	"context"

	"pixie-rpc/message"
)

type HandlerFunc func(ctx context.Context, req message.Request) (*message.Reply, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares so that the first one is the outermost:
// Chain(A, B, C)(h) == A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
