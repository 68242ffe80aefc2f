// Package relay feeds notifications published on a Redis channel into the hub,
// so backend services that never hold a socket can still reach online users.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/proto"
)

// Notifier delivers a notification to live connections.
type Notifier interface {
	Notify(ctx context.Context, n *core.Notification) (int, error)
}

const (
	defaultBaseRetryDelay = time.Second
	defaultMaxRetryDelay  = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription channel closed")

// Subscriber relays messages of one Redis channel to a Notifier.
type Subscriber struct {
	client   *redis.Client
	channel  string
	notifier Notifier
	log      *zerolog.Logger

	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
}

// NewSubscriber creates a subscriber for channel.
func NewSubscriber(client *redis.Client, channel string, notifier Notifier, logger *zerolog.Logger) *Subscriber {
	return &Subscriber{
		client:         client,
		channel:        channel,
		notifier:       notifier,
		log:            logger,
		baseRetryDelay: defaultBaseRetryDelay,
		maxRetryDelay:  defaultMaxRetryDelay,
	}
}

// Run relays until ctx is cancelled. A failed or dropped subscription is
// retried with exponential backoff; Redis being down never ends Run.
func (s *Subscriber) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		subscribed, err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			attempt = 1
		}

		delay := s.retryDelay(attempt)
		s.log.Warn().Err(err).Str("channel", s.channel).Dur("retry_in", delay).Msg("notification relay disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// subscribe holds one subscription until it fails or ctx ends. subscribed
// reports whether Redis confirmed the subscription.
func (s *Subscriber) subscribe(ctx context.Context) (subscribed bool, err error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info().Str("channel", s.channel).Msg("notification relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return true, errSubscriptionClosed
			}
			s.handle(ctx, []byte(msg.Payload))
		}
	}
}

// retryDelay is baseRetryDelay * 2^(attempt-1), capped at maxRetryDelay.
func (s *Subscriber) retryDelay(attempt int) time.Duration {
	delay := s.baseRetryDelay
	for i := 1; i < attempt && delay < s.maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, s.maxRetryDelay)
}

func (s *Subscriber) handle(ctx context.Context, payload []byte) {
	n, err := Decode(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("channel", s.channel).Msg("skipping malformed notification")
		return
	}

	delivered, err := s.notifier.Notify(ctx, n)
	if err != nil {
		var ce *core.CoreError
		if errors.As(err, &ce) {
			s.log.Warn().Str("code", ce.Code).Str("channel", s.channel).Msg("skipping invalid notification")
			return
		}
		s.log.Error().Err(err).Msg("relay notification")
		return
	}
	s.log.Debug().Str("type", n.Type).Str("target", n.UserID).Int("delivered", delivered).Msg("notification relayed")
}

// Decode parses a published message. The shape is the body of POST /api/notifications.
func Decode(data []byte) (*core.Notification, error) {
	var n proto.NotificationData
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &core.Notification{
		Type:    n.Type,
		Message: n.Message,
		UserID:  n.UserID,
		Payload: n.Payload,
	}, nil
}

// Encode renders n in the shape Decode reads.
func Encode(n *core.Notification) ([]byte, error) {
	body := map[string]any{
		"type":    n.Type,
		"message": n.Message,
	}
	if n.UserID != "" {
		body["userId"] = n.UserID
	}
	if len(n.Payload) > 0 {
		body["payload"] = n.Payload
	}
	return json.Marshal(body)
}

// Publish sends n on channel and returns the number of subscribers that got it.
func Publish(ctx context.Context, client *redis.Client, channel string, n *core.Notification) (int64, error) {
	data, err := Encode(n)
	if err != nil {
		return 0, fmt.Errorf("encode notification: %w", err)
	}
	receivers, err := client.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", channel, err)
	}
	return receivers, nil
}
