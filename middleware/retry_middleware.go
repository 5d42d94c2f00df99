package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tuplespace/message"
)

// maxBackoff caps the delay between two attempts.
const maxBackoff = 30 * time.Second

// backoff returns the delay before retry number attempt (from 0): base doubled once per
// earlier attempt, capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if base >= maxBackoff {
		return maxBackoff
	}
	delay := base
	for i := 0; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

// RetryMiddleware re-sends requests answered with 503, the one code the server uses
// for requests it declined without executing. The delay doubles after every attempt
// up to maxBackoff.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.StatusCode() != message.Code503 {
					return resp
				}
				delay := backoff(baseDelay, i)
				logger.Debug("retrying unavailable request",
					zap.Int("attempt", i+1),
					zap.Stringer("type", req.MessageType()),
					zap.String("target", req.Target()),
					zap.Duration("delay", delay),
				)
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp
				case <-timer.C:
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
