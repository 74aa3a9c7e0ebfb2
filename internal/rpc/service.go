// Package rpc exposes a genealogy over gRPC. Messages are structpb.Struct
// values, so the service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	ServiceName = "welineage.v1.LineageService"

	describeMethod      = "/" + ServiceName + "/Describe"
	mapToAncestorMethod = "/" + ServiceName + "/MapToAncestor"
)

// LineageServiceServer is the server API of LineageService.
type LineageServiceServer interface {
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MapToAncestor(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// LineageServiceClient is the client API of LineageService.
type LineageServiceClient interface {
	Describe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	MapToAncestor(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// ServiceDesc describes LineageService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LineageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "MapToAncestor", Handler: mapToAncestorHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "welineage/v1/lineage.proto",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv LineageServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LineageServiceServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LineageServiceServer).Describe(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func mapToAncestorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LineageServiceServer).MapToAncestor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: mapToAncestorMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LineageServiceServer).MapToAncestor(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc

// #region service-client
type lineageServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLineageServiceClient returns a client stub over cc.
func NewLineageServiceClient(cc grpc.ClientConnInterface) LineageServiceClient {
	return &lineageServiceClient{cc: cc}
}

func (c *lineageServiceClient) Describe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, describeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lineageServiceClient) MapToAncestor(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, mapToAncestorMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service-client
