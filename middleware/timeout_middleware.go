package middleware

import (
	"context"
	"time"

	"light-rpc/message"
)

// TimeOutMiddleware bounds the time a request may spend in the rest of the
// chain. The handler keeps running after the deadline with a cancelled ctx
// and its late result is discarded. It stays counted on the counter from
// WithInFlight until it returns.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			wg := inFlight(ctx)
			if wg != nil {
				wg.Add(1)
			}
			done := make(chan *message.Response, 1)
			go func() {
				if wg != nil {
					defer wg.Done()
				}
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return failure(req, "request timed out")
			}
		}
	}
}
