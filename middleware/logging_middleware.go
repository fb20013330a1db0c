package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"light-rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.L()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("service", req.InterfaceName),
				zap.String("method", req.MethodName),
				zap.Uint64("requestId", req.RequestID),
				zap.Duration("duration", time.Since(start)),
			}
			if resp == nil {
				logger.Warn("rpc call produced no response", fields...)
				return resp
			}
			if !resp.Success() {
				logger.Warn("rpc call failed", append(fields,
					zap.Int("code", resp.Code), zap.String("message", resp.Message))...)
				return resp
			}
			logger.Debug("rpc call", fields...)
			return resp
		}
	}
}
