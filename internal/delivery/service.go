package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/events"
)

var (
	// ErrNoDestination means the sender bot has no stream configured.
	ErrNoDestination = errors.New("sender has no destination stream")

	// ErrRateLimited means the sender exceeded its message rate limit.
	ErrRateLimited = errors.New("sender exceeded message rate limit")
)

// Receipt describes one accepted delivery.
type Receipt struct {
	MessageID string `json:"message_id"`
	Stream    string `json:"stream"`
	Topic     string `json:"topic"`
}

// Deliverer is the narrow contract webhook handlers depend on: attempt to
// post body to the conversation identified by (sender, topic), all-or-nothing.
type Deliverer interface {
	Deliver(ctx context.Context, sender auth.Bot, topic, body string) (*Receipt, error)
}

// MessageInserter is the slice of the message store the service needs.
type MessageInserter interface {
	Insert(ctx context.Context, sender, stream, topic, body string) (string, error)
}

// Config holds delivery throttling settings.
type Config struct {
	RatePerMinute int
	Burst         int
}

// Service routes, throttles, and persists messages, then notifies hub
// subscribers. It performs no retries: a rejected delivery is surfaced to the
// caller and the inbound transport owns any resend.
type Service struct {
	store  MessageInserter
	hub    *events.Hub
	logger *slog.Logger

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config, store MessageInserter, hub *events.Hub, logger *slog.Logger) *Service {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Service{
		store:    store,
		hub:      hub,
		logger:   logger,
		limit:    rate.Limit(float64(cfg.RatePerMinute) / 60.0),
		burst:    cfg.Burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Deliver posts body into the sender's stream under topic.
func (s *Service) Deliver(ctx context.Context, sender auth.Bot, topic, body string) (*Receipt, error) {
	if sender.Stream == "" {
		return nil, ErrNoDestination
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}

	if !s.limiterFor(sender.Name).Allow() {
		s.logger.Warn("delivery rate limited", "sender", sender.Name, "stream", sender.Stream)
		s.hub.Publish(events.TypeDeliveryRejected, events.DeliveryRejected{
			Sender: sender.Name,
			Stream: sender.Stream,
			Reason: "rate_limited",
		})
		return nil, ErrRateLimited
	}

	id, err := s.store.Insert(ctx, sender.Name, sender.Stream, topic, body)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.logger.Info("message delivered",
		"message_id", id,
		"sender", sender.Name,
		"stream", sender.Stream,
		"topic", topic,
		"body_bytes", len(body),
	)

	s.hub.Publish(events.TypeMessageDelivered, events.MessageDelivered{
		MessageID: id,
		Sender:    sender.Name,
		Stream:    sender.Stream,
		Topic:     topic,
		Body:      body,
	})

	return &Receipt{MessageID: id, Stream: sender.Stream, Topic: topic}, nil
}

func (s *Service) limiterFor(sender string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[sender]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[sender] = l
	}
	return l
}
