package middleware

import (
	"context"

	"go.uber.org/zap"

	"tuplespace/message"
)

// RecoverMiddleware turns a handler panic into InternalError. The connection and the
// other in-flight requests on it are unaffected.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) (resp message.ServerMessage) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.Any("panic", r),
						zap.Stringer("type", req.MessageType()),
						zap.String("target", req.Target()),
						zap.Stack("stack"),
					)
					resp = message.InternalError()
				}
			}()
			return next(ctx, req)
		}
	}
}
