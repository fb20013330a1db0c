// Package middleware wraps the server's dispatch step. Middlewares see the
// decoded request and the response produced for it; the frame layer is
// handled outside the chain.
package middleware

import (
	"context"
	"sync"

	"light-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost:
// Chain(A, B)(h) runs A, then B, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func failure(req *message.Request, msg string) *message.Response {
	return &message.Response{
		RequestID: req.RequestID,
		Code:      message.CodeFailure,
		Message:   msg,
	}
}

type inFlightKey struct{}

// WithInFlight attaches the server's in-flight counter to ctx. Middlewares
// that hand the request to a goroutine outliving their own return count
// that goroutine on wg, so a graceful shutdown also waits for it.
func WithInFlight(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, inFlightKey{}, wg)
}

func inFlight(ctx context.Context) *sync.WaitGroup {
	wg, _ := ctx.Value(inFlightKey{}).(*sync.WaitGroup)
	return wg
}
