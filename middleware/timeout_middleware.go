package middleware

import (
	"context"
	"time"

	"tuplespace/message"
)

// TimeoutMiddleware bounds a request by timeout. Handlers observe the deadline through
// ctx; a blocking read that runs out of time answers Unavailable.
//
// The handler's response is returned even when it arrives after the deadline, since
// it may describe a tuple that was already removed.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
