// Package relay implements the gRPC transport of the remote control channel.
//
// The service is declared by hand with grpc.ServiceDesc and carries protobuf
// well-known types (emptypb.Empty and structpb.Struct), so no generated code
// is needed. Bots authenticate with a bearer token sent as metadata.
package relay
