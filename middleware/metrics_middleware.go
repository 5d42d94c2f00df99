package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tuplespace/message"
)

var (
	registerOnce sync.Once

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuplespace",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests answered, by request type and status code.",
		},
		[]string{"type", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tuplespace",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Request handling time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// RegisterMetrics registers the request collectors with the default registry. Safe to
// call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, requestDuration)
	})
}

func MetricsMiddleware() Middleware {
	RegisterMetrics()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			start := time.Now()
			resp := next(ctx, req)
			typ := req.MessageType().String()
			requestsTotal.WithLabelValues(typ, resp.StatusCode()).Inc()
			requestDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
			return resp
		}
	}
}
