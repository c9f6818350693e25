package relay

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/tripwire/internal/domain/relay"
)

const (
	// AuthorizationKey is the metadata key carrying the bot token.
	AuthorizationKey = "authorization"
	// bearerPrefix precedes the token in the authorization value.
	bearerPrefix = "Bearer "
)

// Service abstracts the relay operations the transport layer depends on.
type Service interface {
	Authenticate(ctx context.Context, token string) (string, error)
	Subscribe(ctx context.Context, token string) (*domain.Subscription, error)
	Reply(ctx context.Context, token string, reply domain.Reply) error
	Post(ctx context.Context, token, chat, text string) (*domain.Posting, error)
}

// Server implements RelayServiceServer on top of a Service.
type Server struct {
	// service provides the relay business logic.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Authenticate checks the bearer token and returns the bot name.
func (s *Server) Authenticate(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	token := TokenFromContext(ctx)

	name, err := s.service.Authenticate(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{fieldName: name})
}

// Reply sends a message to a chat on behalf of the authenticated bot.
func (s *Server) Reply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	chat, text := ChatAndText(in)

	err := s.service.Reply(ctx, TokenFromContext(ctx), domain.Reply{Chat: chat, Text: text})
	if err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// Subscribe streams commands until the client goes away.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	sub, err := s.service.Subscribe(ctx, TokenFromContext(ctx))
	if err != nil {
		return toStatus(err)
	}

	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-sub.Commands:
			if !ok {
				return status.Error(codes.Unavailable, "subscription closed")
			}

			msg, err := CommandToProto(cmd)
			if err != nil {
				return status.Error(codes.Internal, "encode command")
			}

			if err = stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Post publishes a command, acknowledges it and then streams replies to its chat.
func (s *Server) Post(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}

	ctx := stream.Context()
	chat, text := ChatAndText(in)

	posting, err := s.service.Post(ctx, TokenFromContext(ctx), chat, text)
	if err != nil {
		return toStatus(err)
	}

	defer posting.Close()

	ack, err := AckToProto(Ack{ID: posting.Command.ID, Delivered: posting.Delivered})
	if err != nil {
		return status.Error(codes.Internal, "encode ack")
	}

	if err = stream.Send(ack); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case reply, ok := <-posting.Replies:
			if !ok {
				return nil
			}

			msg, err := ReplyToProto(reply)
			if err != nil {
				return status.Error(codes.Internal, "encode reply")
			}

			if err = stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// TokenFromContext extracts the bearer token from incoming metadata.
func TokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	for _, value := range md.Get(AuthorizationKey) {
		if token, found := strings.CutPrefix(value, bearerPrefix); found {
			return strings.TrimSpace(token)
		}
	}

	return ""
}

// WithToken returns an outgoing context that authenticates as token.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, AuthorizationKey, bearerPrefix+token)
}

// toStatus maps relay errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrNotCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "relay failure")
	}
}
