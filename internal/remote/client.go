package remote

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/merge"
)

// Client is a backend.Backend served by a remote graphpath.v1.Backend.
type Client struct {
	transport Transport
}

// NewClient creates a Client that calls the service through t.
func NewClient(t Transport) *Client { return &Client{transport: t} }

var _ backend.Backend = (*Client)(nil)

func (c *Client) Search(ctx context.Context, reqs []merge.MergedSearch, emit backend.Emit) error {
	req, err := encodeRequests(reqs)
	if err != nil {
		return fmt.Errorf("remote: encode search: %w", err)
	}
	return c.call(ctx, MethodSearch, req, emit)
}

func (c *Client) Resources(ctx context.Context, reqs []merge.MergedResource, emit backend.Emit) error {
	req, err := encodeRequests(reqs)
	if err != nil {
		return fmt.Errorf("remote: encode resources: %w", err)
	}
	return c.call(ctx, MethodResources, req, emit)
}

func (c *Client) call(ctx context.Context, method string, req *structpb.Struct, emit backend.Emit) error {
	err := c.transport.Stream(ctx, ServiceName, method, req, func(msg *structpb.Struct) error {
		pv, err := decodePathValue(msg)
		if err != nil {
			return fmt.Errorf("remote: %s: decode response: %w", method, err)
		}
		emit(pv)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remote: %s: %w", method, err)
	}
	return nil
}
