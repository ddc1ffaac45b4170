// Package pubsub is the update-channel transport: one named channel per
// order, fire-and-forget publishing, at-most-once delivery per currently
// connected subscriber. Durability lives in the order store, not here — a
// missed live update is recoverable by re-reading current state.
package pubsub

import "context"

// channelPrefix matches the original wire naming so external consumers can
// tap the same Redis channels.
const channelPrefix = "order-updates:"

// ChannelFor derives the update channel key for an order.
func ChannelFor(orderID string) string { return channelPrefix + orderID }

// Publisher publishes payloads to a channel. Publish failures must never be
// treated as fatal by callers that have already persisted state.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription is one live attachment to a channel. Events is closed when
// the subscription ends; Close must be called on every teardown path.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// Subscriber opens channel subscriptions. Subscribe returns only once the
// subscription is confirmed active, so anything published afterwards is
// guaranteed to be observed — the gateway's snapshot-then-live ordering
// depends on this.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Broker bundles both halves for transports that provide them together.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}
