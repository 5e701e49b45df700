package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	// Registering under "json" makes grpc pick this codec whenever a call
	// is dialed with grpc.CallContentSubtype("json") / the server accepts
	// the "application/grpc+json" content-subtype — no .proto, no protoc,
	// just the same structs the HTTP handlers already serialize.
	encoding.RegisterCodec(jsonCodec{})
}

// serviceName is the gRPC service name clients dial against, in the usual
// "package.Service" shape even though there's no corresponding .proto.
const serviceName = "llmrouter.ChatService"

func chatCompletionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ChatCompletionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Service).ChatCompletion(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ChatCompletion"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Service).ChatCompletion(ctx, req.(*ChatCompletionRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func listModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListModelsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Service).ListModels(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListModels"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Service).ListModels(ctx, req.(*ListModelsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(HealthRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Service).Health(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Health"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Service).Health(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// chatCompletionStreamHandler adapts the server-streaming RPC onto
// Service.ChatCompletionStream: decode the single request message off the
// stream, then relay every chunk the Router produces back out as its own
// SendMsg call. ServerStreams: true in the ServiceDesc below means grpc
// hands us the raw grpc.ServerStream instead of a typed wrapper — there's
// no generated ChatService_ChatCompletionStreamServer type to implement.
func chatCompletionStreamHandler(srv any, stream grpc.ServerStream) error {
	req := new(ChatCompletionRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Service).ChatCompletionStream(req, func(msg *ChatCompletionResponse) error {
		return stream.SendMsg(msg)
	})
}

// ServiceDesc is registered against a *grpc.Server with
// grpc.RegisterService(&rpc.ServiceDesc, service) in place of the usual
// generated RegisterChatServiceServer function.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ChatCompletion", Handler: chatCompletionHandler},
		{MethodName: "ListModels", Handler: listModelsHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ChatCompletionStream",
			Handler:       chatCompletionStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "llmrouter.proto",
}
