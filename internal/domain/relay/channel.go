package relay

import "errors"

var (
	// ErrUnauthenticated is returned for a missing or unknown bot token.
	ErrUnauthenticated = errors.New("unknown bot token")
	// ErrRateLimited is returned when a token posts faster than allowed.
	ErrRateLimited = errors.New("too many commands")
	// ErrInvalidMessage is returned for empty chats or texts.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotCommand is returned when posted text is not a slash command.
	ErrNotCommand = errors.New("text is not a command")
)

// Subscription is a live feed of commands for one bot.
type Subscription struct {
	// Commands delivers posted commands until Close is called.
	Commands <-chan Command
	// Close detaches the subscription. It is safe to call more than once.
	Close func()
}

// Posting is the outcome of an operator posting a command.
type Posting struct {
	// Command is the accepted command.
	Command Command
	// Delivered is how many subscribers received it.
	Delivered int
	// Replies delivers replies addressed to the posting chat until Close is called.
	Replies <-chan Reply
	// Close stops reply delivery. It is safe to call more than once.
	Close func()
}
