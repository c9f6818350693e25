package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	domain "github.com/oshokin/tripwire/internal/domain/relay"
)

// fakeService implements the relay Service interface for unit testing the transport.
type fakeService struct {
	// token is the only accepted token.
	token string
	// replies collects accepted replies.
	replies []domain.Reply
}

// Authenticate accepts only the configured token.
func (f *fakeService) Authenticate(_ context.Context, token string) (string, error) {
	if token != f.token {
		return "", domain.ErrUnauthenticated
	}

	return "vault-bot", nil
}

// Subscribe is not exercised by the unary tests.
func (f *fakeService) Subscribe(context.Context, string) (*domain.Subscription, error) {
	return nil, domain.ErrUnauthenticated
}

// Reply records the reply when the token matches.
func (f *fakeService) Reply(_ context.Context, token string, reply domain.Reply) error {
	if token != f.token {
		return domain.ErrUnauthenticated
	}

	if reply.Chat == "" {
		return domain.ErrInvalidMessage
	}

	f.replies = append(f.replies, reply)

	return nil
}

// Post always reports rate limiting.
func (f *fakeService) Post(context.Context, string, string, string) (*domain.Posting, error) {
	return nil, domain.ErrRateLimited
}

// incoming builds a server-side context carrying token as bearer metadata.
func incoming(token string) context.Context {
	md := metadata.Pairs(AuthorizationKey, bearerPrefix+token)

	return metadata.NewIncomingContext(context.Background(), md)
}

// TestServer_Authenticate maps tokens to identities and errors to status codes.
func TestServer_Authenticate(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeService{token: "good"})

	resp, err := s.Authenticate(incoming("good"), new(emptypb.Empty))
	require.NoError(t, err)
	require.Equal(t, "vault-bot", resp.GetFields()[fieldName].GetStringValue())

	_, err = s.Authenticate(incoming("bad"), new(emptypb.Empty))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.Authenticate(context.Background(), new(emptypb.Empty))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

// TestServer_Reply_Validation ensures invalid requests return InvalidArgument errors.
func TestServer_Reply_Validation(t *testing.T) {
	t.Parallel()

	svc := &fakeService{token: "good"}
	s := NewServer(svc)

	_, err := s.Reply(incoming("good"), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	empty, err := PostRequest("", "hello")
	require.NoError(t, err)

	_, err = s.Reply(incoming("good"), empty)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := PostRequest("ops", "hello")
	require.NoError(t, err)

	_, err = s.Reply(incoming("good"), req)
	require.NoError(t, err)
	require.Len(t, svc.replies, 1)
	require.Equal(t, "ops", svc.replies[0].Chat)
}

// TestTokenRoundtrip checks that WithToken produces metadata TokenFromContext understands.
func TestTokenRoundtrip(t *testing.T) {
	t.Parallel()

	out := WithToken(context.Background(), "s3cr3t")

	md, ok := metadata.FromOutgoingContext(out)
	require.True(t, ok)

	in := metadata.NewIncomingContext(context.Background(), md)
	require.Equal(t, "s3cr3t", TokenFromContext(in))
	require.Empty(t, TokenFromContext(context.Background()))
}

// TestCommandConversion checks the command payload and kind guard.
func TestCommandConversion(t *testing.T) {
	t.Parallel()

	cmd := domain.Command{
		ID:       "0b5f",
		Chat:     "ops",
		Name:     "dms",
		Args:     "execute",
		PostedAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}

	msg, err := CommandToProto(cmd)
	require.NoError(t, err)
	require.Equal(t, KindCommand, KindOf(msg))

	got, err := CommandFromProto(msg)
	require.NoError(t, err)
	require.Equal(t, cmd, got)

	ack, err := AckToProto(Ack{ID: "0b5f", Delivered: 2})
	require.NoError(t, err)
	require.Equal(t, Ack{ID: "0b5f", Delivered: 2}, AckFromProto(ack))

	_, err = CommandFromProto(ack)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
}

// TestToStatus maps domain errors to gRPC codes.
func TestToStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, codes.ResourceExhausted, status.Code(toStatus(domain.ErrRateLimited)))
	require.Equal(t, codes.InvalidArgument, status.Code(toStatus(domain.ErrNotCommand)))
	require.Equal(t, codes.Internal, status.Code(toStatus(context.DeadlineExceeded)))
}
