// Package middleware wraps request handlers. The server runs every decoded ClientMessage
// through a chain of these; the client reuses RetryMiddleware around its round trip.
package middleware

import (
	"context"

	"tuplespace/message"
)

// HandlerFunc answers one request. It always returns a response; failures are
// ServerMessages with status false.
type HandlerFunc func(ctx context.Context, req message.ClientMessage) message.ServerMessage

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
// 第一个中间件在最外层
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
