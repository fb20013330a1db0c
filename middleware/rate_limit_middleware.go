package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"light-rpc/message"
)

// RateLimitMiddleware rejects requests beyond a token bucket of r per second
// with the given burst. Rejected requests never reach the service.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return failure(req, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
