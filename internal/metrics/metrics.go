// Package metrics turns bus events into Prometheus collectors and request
// summary logs.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	reqid "github.com/hanpama/graphpath/internal/reqid"
)

const namespace = "graphpath"

var (
	windowFlushCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "window_flush_total",
		Help:      "The total number of coalescing windows flushed.",
	}, []string{"window"})

	windowRequestsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "window_requests",
		Help:      "The number of requests coalesced into one dispatch.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	}, []string{"window"})

	windowDispatchErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "window_dispatch_errors_total",
		Help:      "The total number of window dispatches that failed.",
	}, []string{"window"})

	windowDispatchHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "window_dispatch_seconds",
		Help:      "Time spent serving one merged dispatch.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"window"})

	httpRequestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "The total number of model requests served, by status code.",
	}, []string{"code"})

	grpcClientCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grpc_client_streams_total",
		Help:      "The total number of streams opened to the backing service.",
	}, []string{"method", "code"})
)

// Register attaches the collectors and the request summary log to the
// global bus. The returned function detaches them.
func Register(logger *zap.Logger) (unregister func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.WindowFlush) {
			windowFlushCounter.WithLabelValues(e.Window).Inc()
			windowRequestsHistogram.WithLabelValues(e.Window).Observe(float64(e.Requests))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.WindowFlush) {
			logger.Debug("window flushed",
				zap.String("window", e.Window),
				zap.Uint64("seq", e.Seq),
				zap.Int("requests", e.Requests),
				zap.Int("groups", e.Groups),
				zap.String("request_id", reqid.String(ctx)))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.WindowDone) {
			if e.Err != nil {
				windowDispatchErrorCounter.WithLabelValues(e.Window).Inc()
			}
			windowDispatchHistogram.WithLabelValues(e.Window).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			httpRequestCounter.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			logger.Info("model request",
				zap.String("request_id", reqid.String(ctx)),
				zap.String("method", e.Request.Method),
				zap.Int("status", e.Status),
				zap.Int("paths", e.Paths),
				zap.Int("unhandled", e.Unhandled),
				zap.Duration("elapsed", e.Duration))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GRPCClientFinish) {
			grpcClientCounter.WithLabelValues(e.Method, e.Code.String()).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
