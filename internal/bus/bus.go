// Package bus delivers trigger events from many monitors to one consumer.
//
// The bus keeps at most one event. The first send wins; later sends are
// dropped without blocking, and the channel is never closed, so a monitor
// can never panic or stall by sending after the consumer is gone.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// ErrConsumed is returned by Recv after the single event was already taken.
var ErrConsumed = errors.New("trigger bus already consumed")

// Sender is a producer handle. Copy it to give each monitor its own handle.
type Sender struct {
	ch chan<- trigger.Event
}

// Receiver is the single consumer side of the bus.
type Receiver struct {
	ch <-chan trigger.Event

	mu       sync.Mutex
	consumed bool
}

// New creates a bus and returns its producer and consumer ends.
func New() (Sender, *Receiver) {
	ch := make(chan trigger.Event, 1)

	return Sender{ch: ch}, &Receiver{ch: ch}
}

// Send offers ev to the bus and never blocks. It reports whether ev was accepted.
func (s Sender) Send(ctx context.Context, ev trigger.Event) bool {
	if s.ch == nil {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	default:
		logger.DebugKV(ctx, "Trigger event discarded, another source already won",
			"source", ev.Source.String(), "observed_at", ev.ObservedAt)

		return false
	}
}

// Recv waits for the first delivered event. Only the first call can succeed.
func (r *Receiver) Recv(ctx context.Context) (trigger.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed {
		return trigger.Event{}, ErrConsumed
	}

	select {
	case ev := <-r.ch:
		r.consumed = true
		return ev, nil
	case <-ctx.Done():
		return trigger.Event{}, ctx.Err()
	}
}
