package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay carries live events between API instances. Each instance publishes its own
// events to a Redis channel and rebroadcasts events from other instances to its local
// LiveBroker.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	broker  *LiveBroker
	logger  *zap.Logger
}

// NewRedisRelay builds a relay. origin must be unique per process.
func NewRedisRelay(client *redis.Client, channel, origin string, broker *LiveBroker, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, origin: origin, broker: broker, logger: logger}
}

// Publish sends the event to the other instances.
func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	event.Origin = r.origin
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run forwards events from other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("live relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *RedisRelay) forward(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.logger.Warn("discarding malformed live event", zap.Error(err))
		return
	}
	if event.Origin == r.origin {
		return
	}
	r.broker.Broadcast(event)
}
