package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"greendrake/chat/internal/logging"
)

// RelayChannel is the Redis pub/sub channel shared by all API instances.
const RelayChannel = "chat:realtime"

const relayRetryDelay = 2 * time.Second

type relayEnvelope struct {
	Rooms  []string        `json:"rooms"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Except string          `json:"except,omitempty"`
}

// RedisRelay is an Emitter that publishes to Redis so every instance's hub sees the
// event. Each instance, including the publisher, delivers it through Run.
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
}

func NewRedisRelay(rdb *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, channel: RelayChannel}
}

// Emit publishes the event. Failures are logged and the event is lost.
func (r *RedisRelay) Emit(rooms []string, event string, data interface{}, except string) {
	raw, err := json.Marshal(data)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode relay payload")
		return
	}
	payload, err := json.Marshal(relayEnvelope{Rooms: rooms, Event: event, Data: raw, Except: except})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode relay envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("failed to publish realtime event")
	}
}

// Run subscribes and feeds the local hub until ctx is done, resubscribing on failure.
func (r *RedisRelay) Run(ctx context.Context) error {
	for {
		err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Str("channel", r.channel).Msg("realtime relay subscription lost, resubscribing")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(relayRetryDelay):
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so a broken connection surfaces here.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logging.Info().Str("channel", r.channel).Msg("realtime relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logging.Warn().Err(err).Msg("dropping malformed relay envelope")
		return
	}
	r.hub.Emit(env.Rooms, env.Event, env.Data, env.Except)
}
