package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "tripwire.relay.v1.RelayService"

	authenticateMethod = "/" + serviceName + "/Authenticate"
	replyMethod        = "/" + serviceName + "/Reply"
	subscribeMethod    = "/" + serviceName + "/Subscribe"
	postMethod         = "/" + serviceName + "/Post"
)

// RelayServiceServer is the server API of the relay.
//
//nolint:revive // The name mirrors protoc-gen-go-grpc conventions.
type RelayServiceServer interface {
	// Authenticate checks the bearer token and returns the bot identity.
	Authenticate(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	// Reply sends a message to a chat.
	Reply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	// Subscribe streams commands posted for the caller's token.
	Subscribe(in *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
	// Post publishes an operator command and streams replies to its chat.
	Post(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterRelayServiceServer registers srv on s.
func RegisterRelayServiceServer(s grpc.ServiceRegistrar, srv RelayServiceServer) {
	s.RegisterService(&relayServiceDesc, srv)
}

//nolint:gochecknoglobals // Service descriptors are static by nature.
var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RelayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authenticate", Handler: authenticateHandler},
		{MethodName: "Reply", Handler: replyHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
		{StreamName: "Post", Handler: postHandler, ServerStreams: true},
	},
	Metadata: "tripwire/relay/v1/relay.proto",
}

func authenticateHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(RelayServiceServer).Authenticate(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: authenticateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServiceServer).Authenticate(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

func replyHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(RelayServiceServer).Reply(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: replyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServiceServer).Reply(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(RelayServiceServer).Subscribe(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{
		ServerStream: stream,
	})
}

func postHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(RelayServiceServer).Post(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{
		ServerStream: stream,
	})
}

// RelayServiceClient is the client API of the relay.
//
//nolint:revive // The name mirrors protoc-gen-go-grpc conventions.
type RelayServiceClient interface {
	Authenticate(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Reply(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Subscribe(
		ctx context.Context,
		in *emptypb.Empty,
		opts ...grpc.CallOption,
	) (grpc.ServerStreamingClient[structpb.Struct], error)
	Post(
		ctx context.Context,
		in *structpb.Struct,
		opts ...grpc.CallOption,
	) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type relayServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRelayServiceClient wraps cc with the relay client API.
func NewRelayServiceClient(cc grpc.ClientConnInterface) RelayServiceClient {
	return &relayServiceClient{cc: cc}
}

func (c *relayServiceClient) Authenticate(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, authenticateMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *relayServiceClient) Reply(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, replyMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *relayServiceClient) Subscribe(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return openServerStream[emptypb.Empty](ctx, c.cc, &relayServiceDesc.Streams[0], subscribeMethod, in, opts...)
}

func (c *relayServiceClient) Post(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return openServerStream[structpb.Struct](ctx, c.cc, &relayServiceDesc.Streams[1], postMethod, in, opts...)
}

// openServerStream sends the single request of a server-streaming call and half-closes.
func openServerStream[Req any](
	ctx context.Context,
	cc grpc.ClientConnInterface,
	desc *grpc.StreamDesc,
	method string,
	in *Req,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[Req, structpb.Struct]{ClientStream: stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
