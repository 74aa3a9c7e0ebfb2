package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region types
// Summary is the Describe response.
type Summary struct {
	Iterations int
	Nodes      int
	Edges      int
}

// #endregion types

// #region client-struct
// Client wraps the gRPC connection to a lineage server.
type Client struct {
	conn   *grpc.ClientConn
	client LineageServiceClient
}

// NewClient connects to a lineage server at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, client: NewLineageServiceClient(conn)}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
func NewClientWithService(svc LineageServiceClient) *Client {
	return &Client{client: svc}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client-struct

// #region describe
func (c *Client) Describe(ctx context.Context) (Summary, error) {
	resp, err := c.client.Describe(ctx, &structpb.Struct{})
	if err != nil {
		return Summary{}, fmt.Errorf("describe rpc: %w", err)
	}
	f := resp.GetFields()
	return Summary{
		Iterations: int(f["iterations"].GetNumberValue()),
		Nodes:      int(f["nodes"].GetNumberValue()),
		Edges:      int(f["edges"].GetNumberValue()),
	}, nil
}

// #endregion describe

// #region map-to-ancestor
// MapToAncestor asks the server for the ancestor of every node exactly lag hops back.
func (c *Client) MapToAncestor(ctx context.Context, lag int) (map[lineage.NodeID]lineage.NodeID, error) {
	req, err := structpb.NewStruct(map[string]any{"lag": lag})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.MapToAncestor(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("map to ancestor rpc: %w", err)
	}

	entries := resp.GetFields()["mappings"].GetListValue().GetValues()
	out := make(map[lineage.NodeID]lineage.NodeID, len(entries))
	for _, v := range entries {
		fields := v.GetStructValue().GetFields()
		child, err := lineage.ParseNodeID(fields["child"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("map to ancestor response: %w", err)
		}
		anc, err := lineage.ParseNodeID(fields["ancestor"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("map to ancestor response: %w", err)
		}
		out[child] = anc
	}
	return out, nil
}

// #endregion map-to-ancestor
