package grpctp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	"github.com/hanpama/graphpath/internal/remote"
)

// Transport is a gRPC transport with per-endpoint connection pooling and
// deadline propagation. It integrates with an EndpointProvider for service
// discovery.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

var _ remote.Transport = (*Transport)(nil)

var streamDesc = &grpc.StreamDesc{ServerStreams: true}

// Stream performs a server-streaming call on a pooled connection.
func (t *Transport) Stream(ctx context.Context, service, method string, req *structpb.Struct, recv func(*structpb.Struct) error) (err error) {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.opts.Provider == nil {
		return ErrNoProvider
	}
	fullMethod := fmt.Sprintf("/%s/%s", service, method)

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}

	ctx = metadata.AppendToOutgoingContext(ctx, "x-graphpath-service", service)

	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return ErrNoEndpoints
	}
	endpoint := endpoints[rand.IntN(len(endpoints))]

	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return err
	}
	defer t.returnConn(endpoint, cc)

	start := time.Now()
	messages := 0
	eventbus.Publish(ctx, events.GRPCClientStart{Service: service, Method: method, Target: endpoint})
	defer func() {
		eventbus.Publish(ctx, events.GRPCClientFinish{
			Service:  service,
			Method:   method,
			Target:   endpoint,
			Messages: messages,
			Code:     status.Code(err),
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			t.opts.Logger.Debug("grpc stream failed",
				zap.String("method", fullMethod),
				zap.String("target", endpoint),
				zap.Int("messages", messages),
				zap.Error(err))
		}
	}()

	// the stream must not outlive this call, even when recv aborts it
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := cc.NewStream(ctx, streamDesc, fullMethod)
	if err != nil {
		return err
	}
	if err = cs.SendMsg(req); err != nil {
		return err
	}
	if err = cs.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if rerr := cs.RecvMsg(msg); rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			err = rerr
			return err
		}
		messages++
		if err = recv(msg); err != nil {
			return err
		}
	}
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil {
		return
	}
	if p.closed.Load() {
		_ = cc.Close()
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
