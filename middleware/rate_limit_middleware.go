package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"tuplespace/message"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
// 被拒绝的请求返回 503 (Unavailable)，不会执行
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			if !limiter.Allow() {
				return message.Unavailable(req.ClientSession())
			}
			return next(ctx, req)
		}
	}
}
