package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/batch"
	"github.com/hanpama/graphpath/internal/eventbus"
	"github.com/hanpama/graphpath/internal/grpctp"
	"github.com/hanpama/graphpath/internal/logger"
	"github.com/hanpama/graphpath/internal/metrics"
	"github.com/hanpama/graphpath/internal/otel"
	"github.com/hanpama/graphpath/internal/remote"
	"github.com/hanpama/graphpath/internal/router"
	"github.com/hanpama/graphpath/internal/server"
	"github.com/hanpama/graphpath/internal/store"
)

const rootUsage = `graphpath: coalescing JSON Graph model server

USAGE:
  graphpath <command> [flags]

COMMANDS:
  serve            Run the HTTP model endpoint
  backend          Run the in-memory backend as a gRPC service
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>                 HTTP listen address (default: :3000)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>            Max request body size, 0 for unlimited (default: 1048576)
  -server.cors-origin <origin>        Allow a CORS origin, * for any. Repeatable
  -server.metadata-header <name>      Forward HTTP header to gRPC metadata. Repeatable
  -graph.name <name>                  Graph served (default: the seed's graph)
  -store.file <file>                  YAML seed file (default: embedded seed)
  -window.wait <duration>             Coalescing window length (default: 1ms)
  -window.max-batch N                 Flush a window early at N requests, 0 for unbounded
  -backend.remote <host:port,...>     Use the gRPC backend at these endpoints instead of
                                      the in-memory one
  -backend.search-total N             Results per search of the in-memory backend (default: 100)
  -transport.max-conns-per-endpoint N Max TCP conns per endpoint (default: 2)
  -transport.rpc-timeout <duration>   RPC timeout, e.g. 3s (default: 3s)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphpath)
  -log.format <json|text>             Log format (default: text)
  -log.level <level>                  debug, info, warn, error or none (default: info)
`

const backendUsage = `backend FLAGS:
  -grpc.addr <addr>          gRPC listen address (default: :9090)
  -graph.name <name>         Graph served (default: the seed's graph)
  -store.file <file>         YAML seed file (default: embedded seed)
  -search.total N            Results per search (default: 100)
  -search.latency <duration> Artificial latency per call (default: 0)
  -log.format <json|text>    Log format (default: text)
  -log.level <level>         debug, info, warn, error or none (default: info)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphpath", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "backend":
		return cmdBackend(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "backend":
		fmt.Print(backendUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// storeFlags are shared by both commands.
type storeFlags struct {
	graph     string
	storeFile string
	logFormat string
	logLevel  string
}

func (c *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.graph, "graph.name", "", "Graph served")
	fs.StringVar(&c.storeFile, "store.file", "", "YAML seed file")
	fs.StringVar(&c.logFormat, "log.format", "text", "Log format")
	fs.StringVar(&c.logLevel, "log.level", "info", "Log level")
}

func (c *storeFlags) load(l *zap.Logger) (*store.Store, error) {
	if c.storeFile == "" {
		return store.Default(store.WithLogger(l))
	}
	return store.LoadFile(c.storeFile, store.WithLogger(l))
}

func (c *storeFlags) memory(s *store.Store, l *zap.Logger, opts ...backend.Option) *backend.Memory {
	opts = append(opts, backend.WithLogger(l))
	if c.graph != "" {
		opts = append(opts, backend.WithGraph(c.graph))
	}
	return backend.NewMemory(s, opts...)
}

type serveConfig struct {
	storeFlags
	addr            string
	pretty          bool
	timeout         time.Duration
	maxBody         int64
	corsOrigins     stringListFlag
	metadataHeaders stringListFlag
	wait            time.Duration
	maxBatch        int
	remote          string
	searchTotal     int
	maxConns        int
	rpcTimeout      time.Duration
	otelEndpoint    string
	otelService     string
}

func parseServe(args []string) (serveConfig, error) {
	c := serveConfig{
		addr:        ":3000",
		timeout:     10 * time.Second,
		maxBody:     1 << 20,
		wait:        time.Millisecond,
		searchTotal: backend.DefaultSearchTotal,
		maxConns:    2,
		rpcTimeout:  3 * time.Second,
		otelService: "graphpath",
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	c.storeFlags.register(fs)
	fs.StringVar(&c.addr, "server.addr", c.addr, "HTTP listen address")
	fs.BoolVar(&c.pretty, "server.pretty", c.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&c.timeout, "server.timeout", c.timeout, "Per-request timeout")
	fs.Int64Var(&c.maxBody, "server.max-body", c.maxBody, "Max request body size")
	fs.Var(&c.corsOrigins, "server.cors-origin", "Allowed CORS origin")
	fs.Var(&c.metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.DurationVar(&c.wait, "window.wait", c.wait, "Coalescing window length")
	fs.IntVar(&c.maxBatch, "window.max-batch", c.maxBatch, "Max requests per window")
	fs.StringVar(&c.remote, "backend.remote", c.remote, "Remote backend endpoints")
	fs.IntVar(&c.searchTotal, "backend.search-total", c.searchTotal, "Results per search")
	fs.IntVar(&c.maxConns, "transport.max-conns-per-endpoint", c.maxConns, "Max conns per endpoint")
	fs.DurationVar(&c.rpcTimeout, "transport.rpc-timeout", c.rpcTimeout, "RPC timeout")
	fs.StringVar(&c.otelEndpoint, "otel.endpoint", c.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&c.otelService, "otel.service", c.otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.wait <= 0 {
		return c, fmt.Errorf("-window.wait must be positive")
	}
	return c, nil
}

// handler wires the model endpoint and /metrics. release closes the remote
// transport, if any.
func (c serveConfig) handler(l *zap.Logger) (h http.Handler, release func() error, err error) {
	s, err := c.load(l)
	if err != nil {
		return nil, nil, fmt.Errorf("load store: %w", err)
	}

	release = func() error { return nil }
	var b backend.Backend
	if c.remote != "" {
		trOpts := []grpctp.Option{
			grpctp.WithProvider(grpctp.ParseEndpoints(remote.ServiceName, c.remote)),
			grpctp.WithMaxConnsPerEndpoint(c.maxConns),
			grpctp.WithLogger(l),
		}
		if c.rpcTimeout > 0 {
			trOpts = append(trOpts, grpctp.WithRPCTimeout(c.rpcTimeout))
		}
		transport := grpctp.New(trOpts...)
		release = transport.Close
		b = remote.NewClient(transport)
	} else {
		b = c.memory(s, l, backend.WithSearchTotal(c.searchTotal))
	}

	ropts := []router.Option{
		router.WithLogger(l),
		router.WithWindowOptions(batch.WithWait(c.wait), batch.WithMaxBatch(c.maxBatch)),
	}
	if c.graph != "" {
		ropts = append(ropts, router.WithGraph(c.graph))
	}
	r := router.New(b, s, ropts...)

	sopts := []server.Option{server.WithLogger(l), server.WithMaxBodyBytes(c.maxBody)}
	if c.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if c.timeout > 0 {
		sopts = append(sopts, server.WithTimeout(c.timeout))
	}
	if len(c.corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(c.corsOrigins...))
	}
	if len(c.metadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(c.metadataHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle("/model.json", server.New(r, sopts...))
	mux.Handle("/metrics", promhttp.Handler())
	return mux, release, nil
}

func cmdServe(args []string) error {
	c, err := parseServe(args)
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	l, err := logger.New(c.logFormat, c.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(c.otelEndpoint, c.otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	defer metrics.Register(l)()

	h, closeBackend, err := c.handler(l)
	if err != nil {
		return err
	}
	defer func() { _ = closeBackend() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: c.addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	l.Info("model server listening", zap.String("addr", c.addr), zap.Bool("remote_backend", c.remote != ""))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type backendConfig struct {
	storeFlags
	addr    string
	total   int
	latency time.Duration
}

func parseBackend(args []string) (backendConfig, error) {
	c := backendConfig{addr: ":9090", total: backend.DefaultSearchTotal}
	fs := flag.NewFlagSet("backend", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	c.storeFlags.register(fs)
	fs.StringVar(&c.addr, "grpc.addr", c.addr, "gRPC listen address")
	fs.IntVar(&c.total, "search.total", c.total, "Results per search")
	fs.DurationVar(&c.latency, "search.latency", c.latency, "Artificial latency per call")
	err := fs.Parse(args)
	return c, err
}

// grpcServer builds the gRPC server exposing the in-memory backend.
func (c backendConfig) grpcServer(l *zap.Logger) (*grpc.Server, error) {
	s, err := c.load(l)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	mem := c.memory(s, l, backend.WithSearchTotal(c.total), backend.WithLatency(c.latency))
	srv := grpc.NewServer()
	remote.Register(srv, mem)
	return srv, nil
}

func cmdBackend(args []string) error {
	c, err := parseBackend(args)
	if err != nil {
		fmt.Fprint(os.Stderr, backendUsage)
		return err
	}
	l, err := logger.New(c.logFormat, c.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	srv, err := c.grpcServer(l)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", c.addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	l.Info("backend listening", zap.String("addr", lis.Addr().String()), zap.String("service", remote.ServiceName))
	return srv.Serve(lis)
}
