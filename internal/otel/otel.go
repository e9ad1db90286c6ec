package otel

import (
	"context"
	"strconv"
	"sync"

	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	reqid "github.com/hanpama/graphpath/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	newSubscriber(otel.Tracer("graphpath")).register()

	return tp.Shutdown, nil
}

// grpcKey identifies one client stream. A request may have a search and a
// resource stream in flight at once.
type grpcKey struct {
	rid    int64
	method string
}

type subscriber struct {
	tracer      trace.Tracer
	httpSpans   sync.Map // rid -> trace.Span
	windowSpans sync.Map // window#seq -> trace.Span
	grpcSpans   sync.Map // grpcKey -> trace.Span
}

func newSubscriber(t trace.Tracer) *subscriber { return &subscriber{tracer: t} }

func windowKey(window string, seq uint64) string {
	return window + "#" + strconv.FormatUint(seq, 10)
}

// parent returns ctx carrying the HTTP span of the request ctx belongs to.
// Window dispatches inherit the request id of the submit that opened them,
// so their spans hang under that request.
func (s *subscriber) parent(ctx context.Context) context.Context {
	rid, _ := reqid.FromContext(ctx)
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int("graphpath.paths", e.Paths),
			attribute.Int("graphpath.unhandled_paths", e.Unhandled),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.WindowFlush) {
		_, span := s.tracer.Start(s.parent(ctx), "window.dispatch")
		span.SetAttributes(
			attribute.String("graphpath.window", e.Window),
			attribute.Int64("graphpath.window.seq", int64(e.Seq)),
			attribute.Int("graphpath.window.requests", e.Requests),
			attribute.Int("graphpath.window.groups", e.Groups),
		)
		s.windowSpans.Store(windowKey(e.Window, e.Seq), span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.WindowDone) {
		v, ok := s.windowSpans.LoadAndDelete(windowKey(e.Window, e.Seq))
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("graphpath.window.entries", e.Entries))
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx), "grpc.client")
		span.SetAttributes(
			semconv.RPCServiceKey.String(e.Service),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
		)
		s.grpcSpans.Store(grpcKey{rid: rid, method: e.Method}, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.grpcSpans.LoadAndDelete(grpcKey{rid: rid, method: e.Method})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.String("grpc.code", e.Code.String()),
			attribute.Int("graphpath.messages", e.Messages),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
