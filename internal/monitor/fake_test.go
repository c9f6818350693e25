package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/tripwire/internal/domain/relay"
)

// fakeChannel is an in-memory remote control channel.
type fakeChannel struct {
	authErr  error
	commands chan relay.Command

	mu      sync.Mutex
	replies []relay.Reply
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{commands: make(chan relay.Command)}
}

func (f *fakeChannel) Authenticate(context.Context) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}

	return "testbot", nil
}

func (f *fakeChannel) Listen(ctx context.Context, handle func(context.Context, relay.Command)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-f.commands:
			handle(ctx, cmd)
		}
	}
}

func (f *fakeChannel) Reply(_ context.Context, chat, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies = append(f.replies, relay.Reply{Chat: chat, Text: text, SentAt: time.Now()})

	return nil
}

func (f *fakeChannel) sentReplies() []relay.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]relay.Reply, len(f.replies))
	copy(out, f.replies)

	return out
}

// flakyChannel fails the first fail Listen calls.
type flakyChannel struct {
	*fakeChannel

	fail int

	callsMu sync.Mutex
	calls   []time.Time
}

var errStreamBroken = errors.New("stream broken")

func (f *flakyChannel) Listen(ctx context.Context, handle func(context.Context, relay.Command)) error {
	f.callsMu.Lock()
	f.calls = append(f.calls, time.Now())
	n := len(f.calls)
	f.callsMu.Unlock()

	if n <= f.fail {
		return errStreamBroken
	}

	<-ctx.Done()

	return nil
}

func (f *flakyChannel) callTimes() []time.Time {
	f.callsMu.Lock()
	defer f.callsMu.Unlock()

	out := make([]time.Time, len(f.calls))
	copy(out, f.calls)

	return out
}

// stalledChannel never answers Authenticate, like a relay stuck connecting.
type stalledChannel struct {
	*fakeChannel
}

func (*stalledChannel) Authenticate(ctx context.Context) (string, error) {
	<-ctx.Done()

	return "", ctx.Err()
}
