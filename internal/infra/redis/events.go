package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"quizroom-service/internal/domain"
)

const roomEventsPattern = "quiz:room:*:events"

// Broadcaster receives events relayed from other instances.
type Broadcaster interface {
	Broadcast(event domain.RoomEvent)
}

type envelope struct {
	Origin string           `json:"origin"`
	Event  domain.RoomEvent `json:"event"`
}

// EventBus publishes room events on Redis pub/sub so every instance can fan them out
// to its own WebSocket clients. Origin tags messages so an instance skips its own.
type EventBus struct {
	client *redis.Client
	origin string
}

func NewEventBus(client *redis.Client, origin string) *EventBus {
	return &EventBus{client: client, origin: origin}
}

func (b *EventBus) Publish(ctx context.Context, event domain.RoomEvent) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, ChannelFor(event.RoomID), data).Err()
}

// Relay subscribes to every room channel. The subscription is live once Relay returns.
func (b *EventBus) Relay(ctx context.Context) (*Relay, error) {
	ps := b.client.PSubscribe(ctx, roomEventsPattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe room events: %w", err)
	}
	return &Relay{ps: ps, origin: b.origin}, nil
}

// ChannelFor names the pub/sub channel of a room.
func ChannelFor(roomID string) string {
	return "quiz:room:" + roomID + ":events"
}

// Relay forwards events published by other instances to a local Broadcaster.
type Relay struct {
	ps     *redis.PubSub
	origin string
}

// Run blocks until ctx is done or the subscription closes.
func (r *Relay) Run(ctx context.Context, hub Broadcaster) error {
	defer r.ps.Close()
	ch := r.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("relay: drop malformed event on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			hub.Broadcast(env.Event)
		}
	}
}
