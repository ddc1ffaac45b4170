package pubsub

import (
	"context"
	"errors"
	"sync"
)

const subscriberBuffer = 64

// MemoryBroker is an in-process Broker for single-process deployments and
// tests. Delivery is at-most-once: a subscriber whose buffer is full simply
// misses the event, same contract as the Redis transport.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers payload to every subscriber currently attached to the
// channel, dropping on full buffers rather than blocking the publisher.
func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("pubsub: broker closed")
	}
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe attaches a new subscriber. The subscription is active as soon as
// this returns.
func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("pubsub: broker closed")
	}
	sub := &memorySub{broker: b, channel: channel, ch: make(chan []byte, subscriberBuffer)}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySub]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Close tears down the broker and every live subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for sub := range subs {
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
		delete(b.subs, channel)
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.channel)
		}
	}
}

type memorySub struct {
	broker    *MemoryBroker
	channel   string
	ch        chan []byte
	closeOnce sync.Once
}

func (s *memorySub) Events() <-chan []byte { return s.ch }

func (s *memorySub) Close() error {
	s.broker.remove(s)
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
