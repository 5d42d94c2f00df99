package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tuplespace/message"
)

// LoggingMiddleware logs one line per request: debug for successes, warn for failures
// the client caused, error for the rest.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.Stringer("type", req.MessageType()),
				zap.String("target", req.Target()),
				zap.String("session", req.ClientSession()),
				zap.String("code", resp.StatusCode()),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case resp.Status():
				logger.Debug("request", fields...)
			case resp.StatusCode() == message.Code500:
				logger.Error("request", fields...)
			default:
				logger.Warn("request", fields...)
			}
			return resp
		}
	}
}
