package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

func channelFor(table, tenant string) string {
	return fmt.Sprintf("changes:%s:%s", table, tenant)
}

// RedisStream implements Stream on Redis pub/sub, one channel per table and
// tenant. It also carries the publish side used by the store after writes.
type RedisStream struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStream constructs a RedisStream.
func NewRedisStream(client *redis.Client, logger *slog.Logger) *RedisStream {
	return &RedisStream{client: client, logger: logger}
}

// Publish emits a change event to subscribers of its table/tenant channel.
func (s *RedisStream) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("remote: encode event: %w", err)
	}
	return s.client.Publish(ctx, channelFor(ev.Table, ev.Tenant), payload).Err()
}

// Subscribe starts delivering change events for table to fn until the
// subscription or ctx is closed. Delivery order is the publish order.
func (s *RedisStream) Subscribe(ctx context.Context, table, tenant string, fn func(Event)) (Subscription, error) {
	if tenant == "" {
		return nil, fmt.Errorf("remote: subscribe %s: tenant required", table)
	}
	pubsub := s.client.Subscribe(ctx, channelFor(table, tenant))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("remote: subscribe %s: %w", table, err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					if s.logger != nil {
						s.logger.Warn("drop malformed change event",
							slog.String("table", table), slog.Any("error", err))
					}
					continue
				}
				fn(ev)
			}
		}
	}()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
	err    error
}

// Close tears down the subscription and waits for the delivery goroutine to
// drain. Safe to call multiple times.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}
