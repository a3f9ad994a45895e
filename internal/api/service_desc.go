package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "firewall.correlation.v1.CorrelationService"

// Method names of the correlation service.
const (
	MethodCrossReference         = "CrossReference"
	MethodEnhancedCrossReference = "EnhancedCrossReference"
	MethodSuggest                = "Suggest"
	MethodSearchEntities         = "SearchEntities"
	MethodListPatterns           = "ListPatterns"
)

// CorrelationServer is the server API of the correlation service. Requests
// and responses carry the same JSON documents as the MCP tools, wrapped in
// google.protobuf.Struct.
type CorrelationServer interface {
	CrossReference(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnhancedCrossReference(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Suggest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPatterns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CorrelationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CorrelationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CorrelationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CorrelationServiceDesc describes the correlation service for grpc.Server.
var CorrelationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CorrelationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodCrossReference, Handler: unaryHandler(MethodCrossReference, CorrelationServer.CrossReference)},
		{MethodName: MethodEnhancedCrossReference, Handler: unaryHandler(MethodEnhancedCrossReference, CorrelationServer.EnhancedCrossReference)},
		{MethodName: MethodSuggest, Handler: unaryHandler(MethodSuggest, CorrelationServer.Suggest)},
		{MethodName: MethodSearchEntities, Handler: unaryHandler(MethodSearchEntities, CorrelationServer.SearchEntities)},
		{MethodName: MethodListPatterns, Handler: unaryHandler(MethodListPatterns, CorrelationServer.ListPatterns)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "firewall/correlation/v1/correlation.proto",
}

// RegisterCorrelationServer registers srv with the gRPC service registrar.
func RegisterCorrelationServer(s grpc.ServiceRegistrar, srv CorrelationServer) {
	s.RegisterService(&CorrelationServiceDesc, srv)
}
