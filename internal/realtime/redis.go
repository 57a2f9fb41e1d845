package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChannel carries the event protocol over Redis pub/sub. Redis
// gives fire-and-forget fan-out with no ordering guarantee across
// publishers, which is exactly the delivery contract consumers are
// written against.
type RedisChannel struct {
	rdb *redis.Client
}

// NewRedisChannel returns a channel over the given client.
func NewRedisChannel(rdb *redis.Client) *RedisChannel {
	if rdb == nil {
		panic("nil redis client passed to NewRedisChannel")
	}
	return &RedisChannel{rdb: rdb}
}

// Connect verifies the server is reachable.
func (c *RedisChannel) Connect(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect channel: %w", err)
	}
	return nil
}

// Publish sends payload on the Redis channel named after the event.
func (c *RedisChannel) Publish(ctx context.Context, event string, payload []byte) error {
	if err := c.rdb.Publish(ctx, event, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Subscribe opens a Redis subscription for the named events and
// forwards deliveries until cancel is called. The first Receive waits
// for the subscription confirmation so no message published after
// Subscribe returns can be missed.
func (c *RedisChannel) Subscribe(ctx context.Context, events ...string) (<-chan Message, func(), error) {
	ps := c.rdb.Subscribe(ctx, events...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			out <- Message{Event: msg.Channel, Payload: []byte(msg.Payload)}
		}
	}()
	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}
