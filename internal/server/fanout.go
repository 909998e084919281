// Package server relays room broadcasts between server processes through a
// Redis pub/sub channel via the Fanout type, so clients connected to
// different instances can still share a room.
package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fanoutChannel is the single shared pub/sub channel carrying all room
// traffic. Receiving processes scope each broadcast to a room using their
// own presence store; the broker itself has no concept of rooms.
const fanoutChannel = "connectify:rooms"

// fanoutEnvelope wraps a room broadcast for transit between processes. The
// origin identifies the publishing process so it can skip its own messages,
// which it has already delivered locally.
type fanoutEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Fanout publishes local room broadcasts to peer processes and applies
// theirs in return. Publishing is fire-and-forget: a slow or failed publish
// never delays the connection event that triggered it.
type Fanout struct {
	client  *redis.Client
	origin  string
	publish chan fanoutEnvelope
}

// NewFanout connects to the Redis broker at the given URL and verifies the
// connection with a ping. It returns an error if the broker is unreachable;
// callers are expected to log the failure once and continue in
// single-process mode.
func NewFanout(redisURL string) (*Fanout, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Fanout{
		client:  client,
		origin:  uuid.NewString(),
		publish: make(chan fanoutEnvelope, 256),
	}, nil
}

// Publish queues a room broadcast for relay to peer processes. It never
// blocks; if the publish queue is full the broadcast is dropped, keeping
// local delivery unaffected.
func (f *Fanout) Publish(room string, payload []byte) {
	env := fanoutEnvelope{Origin: f.origin, Room: room, Payload: payload}
	select {
	case f.publish <- env:
	default:
		log.Printf("Dropping fanout publish for room %q: publish queue full", room)
	}
}

// Run drains the publish queue and subscribes to the shared channel,
// handing each peer broadcast to deliver. It blocks until the context is
// canceled and should be called in a separate goroutine.
func (f *Fanout) Run(ctx context.Context, deliver func(room string, payload []byte)) {
	sub := f.client.Subscribe(ctx, fanoutChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("Error closing fanout subscription: %v", err)
		}
	}()

	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case env := <-f.publish:
			data, err := json.Marshal(env)
			if err != nil {
				log.Printf("Failed to marshal fanout envelope for room %q: %v", env.Room, err)
				continue
			}
			if err := f.client.Publish(ctx, fanoutChannel, data).Err(); err != nil {
				log.Printf("Fanout publish failed for room %q: %v", env.Room, err)
			}

		case msg, ok := <-messages:
			if !ok {
				log.Println("Fanout subscription closed")
				return
			}

			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Ignoring malformed fanout envelope: %v", err)
				continue
			}
			if env.Origin == f.origin {
				continue
			}

			deliver(env.Room, env.Payload)
		}
	}
}

// Close releases the broker connection. In-flight publishes are drained on a
// best-effort basis only.
func (f *Fanout) Close() error {
	return f.client.Close()
}
