package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"light-rpc/message"
)

type MetricsBuilder struct {
	Namespace  string
	Subsystem  string
	Registerer prometheus.Registerer
}

// Build registers a request counter and a latency histogram, both labelled
// by service and method, and returns the middleware that feeds them.
func (b MetricsBuilder) Build() Middleware {
	reg := b.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: b.Namespace,
		Subsystem: b.Subsystem,
		Name:      "requests_total",
		Help:      "Handled RPC requests by result code.",
	}, []string{"service", "method", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: b.Namespace,
		Subsystem: b.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "Time spent dispatching RPC requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method"})
	reg.MustRegister(requests, latency)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			code := message.CodeFailure
			if resp != nil {
				code = resp.Code
			}
			latency.WithLabelValues(req.InterfaceName, req.MethodName).Observe(time.Since(start).Seconds())
			requests.WithLabelValues(req.InterfaceName, req.MethodName, strconv.Itoa(code)).Inc()
			return resp
		}
	}
}
