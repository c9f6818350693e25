package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oshokin/tripwire/internal/config"
	domain "github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/logger"
)

// subscriberBuffer bounds how many commands may queue for a slow bot.
const subscriberBuffer = 16

// channel is the per-token state: the bot name, its subscribers and the
// operators waiting for replies, keyed by chat.
type channel struct {
	name        string
	limiter     *rate.Limiter
	subscribers map[uint64]chan domain.Command
	watchers    map[string]map[uint64]chan domain.Reply
}

// service is the in-memory relay hub. It fans commands out to every bot
// subscribed with the same token and routes replies back to the chat that
// posted the command.
type service struct {
	// channels maps tokens to their state.
	channels map[string]*channel
	// nextID numbers subscriptions and watchers.
	nextID uint64
	// mu protects channels and nextID.
	mu sync.Mutex
}

// newService creates a hub accepting the configured bots.
func newService(settings config.Relay) *service {
	s := &service{
		channels: make(map[string]*channel, len(settings.Bots)),
	}

	for _, bot := range settings.Bots {
		s.channels[bot.Token] = &channel{
			name:        bot.Name,
			limiter:     rate.NewLimiter(rate.Limit(settings.PostRate), settings.PostBurst),
			subscribers: make(map[uint64]chan domain.Command),
			watchers:    make(map[string]map[uint64]chan domain.Reply),
		}
	}

	return s
}

// Authenticate returns the bot name registered for token.
func (s *service) Authenticate(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[token]
	if !ok {
		logger.Warn(ctx, "Rejected unknown bot token")
		return "", domain.ErrUnauthenticated
	}

	return ch.name, nil
}

// Subscribe attaches a command feed for token.
func (s *service) Subscribe(ctx context.Context, token string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[token]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	s.nextID++
	id := s.nextID
	feed := make(chan domain.Command, subscriberBuffer)
	ch.subscribers[id] = feed

	logger.InfoKV(ctx, "Bot subscribed", "bot", ch.name, "subscribers", len(ch.subscribers))

	var once sync.Once

	return &domain.Subscription{
		Commands: feed,
		Close: func() {
			once.Do(func() {
				s.mu.Lock()
				defer s.mu.Unlock()

				delete(ch.subscribers, id)
				logger.InfoKV(ctx, "Bot unsubscribed", "bot", ch.name, "subscribers", len(ch.subscribers))
			})
		},
	}, nil
}

// Reply routes a bot message to every operator watching the chat.
func (s *service) Reply(ctx context.Context, token string, reply domain.Reply) error {
	if reply.Chat == "" || reply.Text == "" {
		return domain.ErrInvalidMessage
	}

	reply.SentAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[token]
	if !ok {
		return domain.ErrUnauthenticated
	}

	for _, watcher := range ch.watchers[reply.Chat] {
		select {
		case watcher <- reply:
		default:
			logger.WarnKV(ctx, "Reply dropped for slow watcher", "bot", ch.name, "chat", reply.Chat)
		}
	}

	logger.InfoKV(ctx, "Reply relayed", "bot", ch.name, "chat", reply.Chat, "watchers", len(ch.watchers[reply.Chat]))

	return nil
}

// Post parses text as a command and delivers it to every subscriber of token.
// The returned Posting streams replies to chat until it is closed.
func (s *service) Post(ctx context.Context, token, chat, text string) (*domain.Posting, error) {
	if chat == "" {
		return nil, domain.ErrInvalidMessage
	}

	name, args, ok := domain.ParseCommand(text)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotCommand, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, found := s.channels[token]
	if !found {
		return nil, domain.ErrUnauthenticated
	}

	if !ch.limiter.Allow() {
		logger.WarnKV(ctx, "Command rate limit hit", "bot", ch.name, "chat", chat)
		return nil, domain.ErrRateLimited
	}

	cmd := domain.Command{
		ID:       uuid.NewString(),
		Chat:     chat,
		Name:     name,
		Args:     args,
		PostedAt: time.Now(),
	}

	// Register the watcher before delivery so no reply can be missed.
	s.nextID++
	watcherID := s.nextID
	replies := make(chan domain.Reply, subscriberBuffer)

	if ch.watchers[chat] == nil {
		ch.watchers[chat] = make(map[uint64]chan domain.Reply)
	}

	ch.watchers[chat][watcherID] = replies

	delivered := 0

	for _, feed := range ch.subscribers {
		select {
		case feed <- cmd:
			delivered++
		default:
			logger.WarnKV(ctx, "Command dropped for slow subscriber", "bot", ch.name, "command_id", cmd.ID)
		}
	}

	logger.InfoKV(ctx, "Command posted", "bot", ch.name, "chat", chat, "command", cmd.Name,
		"command_id", cmd.ID, "delivered", delivered)

	var once sync.Once

	return &domain.Posting{
		Command:   cmd,
		Delivered: delivered,
		Replies:   replies,
		Close: func() {
			once.Do(func() {
				s.mu.Lock()
				defer s.mu.Unlock()

				delete(ch.watchers[chat], watcherID)

				if len(ch.watchers[chat]) == 0 {
					delete(ch.watchers, chat)
				}
			})
		},
	}, nil
}
