package remote_test

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/grpctp"
	"github.com/hanpama/graphpath/internal/merge"
	"github.com/hanpama/graphpath/internal/remote"
	"github.com/hanpama/graphpath/internal/store"
)

// startServer serves b over an in-memory listener and returns a client
// backend wired through the pooled transport.
func startServer(t *testing.T, b backend.Backend) *remote.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	remote.Register(srv, b)
	go func() { _ = srv.Serve(lis) }()

	tp := grpctp.New(
		grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{remote.ServiceName: {"bufnet"}})),
		grpctp.WithDialOptions(
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		),
	)
	t.Cleanup(func() {
		_ = tp.Close()
		srv.Stop()
		_ = lis.Close()
	})
	return remote.NewClient(tp)
}

func sortPaths(pvs []graph.PathValue) {
	sort.Slice(pvs, func(i, j int) bool { return pvs[i].Path.Key() < pvs[j].Path.Key() })
}

func TestRoundTrip_MatchesLocalBackend(t *testing.T) {
	s, err := store.Default()
	require.NoError(t, err)
	local := backend.NewMemory(s)
	client := startServer(t, local)
	ctx := context.Background()

	searches := []merge.MergedSearch{
		{SearchID: "type=company", Ranges: []graph.Range{{From: 0, To: 2}}, Count: true},
		{SearchID: "broken", Ranges: []graph.Range{{From: 0, To: 0}}},
	}
	resources := []merge.MergedResource{
		{Type: "person", Resources: []string{"_1", "_2"}, Fields: []string{"birthDate", "shareholderOf"}, Ranges: []graph.Range{{From: 0, To: 1}}, Count: true, Label: true},
		{Type: "attribute", Resources: []string{"name"}, Fields: []string{"label"}, Ranges: []graph.Range{{From: 0, To: 1}}},
	}

	for name, call := range map[string]func(backend.Backend, backend.Emit) error{
		"search":    func(b backend.Backend, emit backend.Emit) error { return b.Search(ctx, searches, emit) },
		"resources": func(b backend.Backend, emit backend.Emit) error { return b.Resources(ctx, resources, emit) },
	} {
		t.Run(name, func(t *testing.T) {
			var want, got []graph.PathValue
			require.NoError(t, call(local, func(pv graph.PathValue) { want = append(want, pv) }))
			require.NoError(t, call(client, func(pv graph.PathValue) { got = append(got, pv) }))
			sortPaths(want)
			sortPaths(got)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("remote result differs from local (-local +remote):\n%s", diff)
			}
		})
	}
}

type failing struct{ md chan metadata.MD }

func (f failing) Search(ctx context.Context, _ []merge.MergedSearch, emit backend.Emit) error {
	md, _ := metadata.FromIncomingContext(ctx)
	f.md <- md
	emit(graph.PathValue{Path: graph.SearchLengthPath("juno", "x"), Value: 1})
	return errors.New("index offline")
}

func (f failing) Resources(context.Context, []merge.MergedResource, backend.Emit) error {
	return status.Error(codes.Unavailable, "down for maintenance")
}

func TestRoundTrip_ErrorsAndMetadata(t *testing.T) {
	f := failing{md: make(chan metadata.MD, 1)}
	client := startServer(t, f)
	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs("x-tenant", "acme"))

	var got []graph.PathValue
	err := client.Search(ctx, nil, func(pv graph.PathValue) { got = append(got, pv) })
	require.Error(t, err)
	require.Equal(t, codes.Unknown, status.Code(errors.Unwrap(err)))
	require.Len(t, got, 1)

	md := <-f.md
	require.Equal(t, []string{"acme"}, md.Get("x-tenant"))
	require.Equal(t, []string{remote.ServiceName}, md.Get("x-graphpath-service"))

	err = client.Resources(context.Background(), nil, func(graph.PathValue) {})
	require.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}
