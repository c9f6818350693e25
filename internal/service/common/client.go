//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/tripwire/internal/api/grpc/relay"
	domain "github.com/oshokin/tripwire/internal/domain/relay"
)

// Client wraps the relay gRPC client with the bot token and call timeouts.
type Client struct {
	// conn is the underlying gRPC connection to the relay.
	conn *grpc.ClientConn
	// api is the relay client interface.
	api api.RelayServiceClient
	// token authenticates every call.
	token string

	// callTimeout is the default timeout for unary calls.
	callTimeout time.Duration
	// userAgent is sent with every connection when set.
	userAgent string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithUserAgent identifies the calling binary to the relay.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// defaultCallTimeout applies when no WithCallTimeout option is given.
const defaultCallTimeout = 5 * time.Second

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errTokenRequired is returned when no bot token is configured.
	errTokenRequired = errors.New("token must be provided")
	// ErrStreamClosed is returned when the relay ends a stream.
	ErrStreamClosed = errors.New("relay closed the stream")
)

// Dial prepares a connection to the relay. The connection is lazy; the
// first call reveals whether the relay is reachable.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address, token string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	if token == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:       token,
		callTimeout: defaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if client.userAgent != "" {
		dialOptions = append(dialOptions, grpc.WithUserAgent(client.userAgent))
	}

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	client.conn = conn
	client.api = api.NewRelayServiceClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Authenticate verifies the token with the relay and returns the bot name.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Authenticate(callCtx, new(emptypb.Empty))
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	return resp.GetFields()["name"].GetStringValue(), nil
}

// Listen streams commands to handle until ctx is canceled or the stream breaks.
// It returns nil only when ctx ends.
func (c *Client) Listen(ctx context.Context, handle func(context.Context, domain.Command)) error {
	stream, err := c.api.Subscribe(api.WithToken(ctx, c.token), new(emptypb.Empty))
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}

			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}

			return fmt.Errorf("receive command: %w", err)
		}

		cmd, err := api.CommandFromProto(msg)
		if err != nil {
			continue
		}

		handle(ctx, cmd)
	}
}

// Reply sends text to chat.
func (c *Client) Reply(ctx context.Context, chat, text string) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := api.PostRequest(chat, text)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}

	if _, err = c.api.Reply(callCtx, req); err != nil {
		return fmt.Errorf("reply: %w", err)
	}

	return nil
}

// Posted is an accepted operator command with its reply stream.
type Posted struct {
	// Ack reports the command ID and how many bots received it.
	Ack api.Ack

	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Post publishes text as a command from chat. Cancel ctx to stop reading replies.
func (c *Client) Post(ctx context.Context, chat, text string) (*Posted, error) {
	req, err := api.PostRequest(chat, text)
	if err != nil {
		return nil, fmt.Errorf("encode post: %w", err)
	}

	stream, err := c.api.Post(api.WithToken(ctx, c.token), req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}

	first, err := stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}

	if api.KindOf(first) != api.KindAck {
		return nil, fmt.Errorf("post: %w: expected ack", domain.ErrInvalidMessage)
	}

	return &Posted{
		Ack:    api.AckFromProto(first),
		stream: stream,
	}, nil
}

// NextReply blocks until the next reply to the posting chat arrives.
func (p *Posted) NextReply() (domain.Reply, error) {
	msg, err := p.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Reply{}, ErrStreamClosed
		}

		return domain.Reply{}, err
	}

	return api.ReplyFromProto(msg), nil
}

// callContext returns an authenticated context with the client's call timeout.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = api.WithToken(ctx, c.token)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
