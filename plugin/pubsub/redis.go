package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the redis channels: an event is published on "plaza:<event>".
const DefaultChannelPrefix = "plaza:"

// RedisPublisher publishes JSON messages on redis channels.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher creates a publisher over client. An empty prefix uses DefaultChannelPrefix.
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the redis channel of event.
func (p *RedisPublisher) Channel(event string) string {
	return p.prefix + event
}

func (p *RedisPublisher) Emit(ctx context.Context, event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if err := p.client.Publish(ctx, p.Channel(event), data).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish %s", event)
	}
	return nil
}

// Relay forwards every message published under the prefix to bus until ctx
// is done. It lets a node serve in-process subscribers for events emitted by
// any node. It returns once the subscription is confirmed.
func (p *RedisPublisher) Relay(ctx context.Context, bus *Bus) error {
	sub := p.client.PSubscribe(ctx, p.prefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrap(err, "failed to subscribe")
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					slog.Warn("dropping malformed pubsub message", "channel", m.Channel, "error", err)
					continue
				}
				if msg.Event == "" {
					msg.Event = strings.TrimPrefix(m.Channel, p.prefix)
				}
				bus.Deliver(ctx, &msg)
			}
		}
	}()
	return nil
}
