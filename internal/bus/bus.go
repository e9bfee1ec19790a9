package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Message is one event travelling between publishers and relays.
type Message struct {
	Type string `json:"type"`
	// Group is the subscriber group the event is scoped to; empty means everyone.
	Group string          `json:"group,omitempty"`
	Body  json.RawMessage `json:"body"`
}

// ErrFull is returned when the in-memory buffer has no room for a message.
var ErrFull = errors.New("event bus full")

// Bus is the abstraction over different backends.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed bus for single-instance deployments and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory bus.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message without waiting for buffer space.
func (b *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case b.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Consume returns a channel for the relay. Only one consumer is supported.
func (b *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-b.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisPubSub fans every message out to all subscribed instances.
type RedisPubSub struct {
	client  *redis.Client
	channel string
}

// NewRedisPubSub builds a bus over PUBLISH/SUBSCRIBE on one channel.
func NewRedisPubSub(client *redis.Client, channel string) *RedisPubSub {
	if channel == "" {
		channel = "classlens:events"
	}
	return &RedisPubSub{client: client, channel: channel}
}

// Publish sends a message to every subscribed instance.
func (b *RedisPubSub) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Consume subscribes to the channel until ctx is done.
func (b *RedisPubSub) Consume(ctx context.Context) (<-chan Message, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					log.Warn().Err(err).Str("channel", b.channel).Msg("dropping undecodable event")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
