package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker is the Redis-backed Broker, wire-compatible with the
// `order-updates:<id>` channels the rest of the platform consumes.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects a broker to the given Redis instance.
func NewRedisBroker(opts *redis.Options) *RedisBroker {
	return &RedisBroker{client: redis.NewClient(opts)}
}

// Ping verifies connectivity at startup.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish is fire-and-forget: delivery only reaches subscribers connected at
// publish time.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a dedicated Redis subscription and waits for the server's
// subscription confirmation before returning, so events published after
// Subscribe returns cannot be missed.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSub{ps: ps, ch: make(chan []byte, subscriberBuffer)}
	go sub.pump()
	return sub, nil
}

// Close shuts down the underlying client and with it every subscription.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSub struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *redisSub) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default: // slow subscriber: at-most-once, drop
		}
	}
}

func (s *redisSub) Events() <-chan []byte { return s.ch }

func (s *redisSub) Close() error { return s.ps.Close() }

var _ Broker = (*RedisBroker)(nil)
