package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_DeliversThroughLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := setupHub(t)
	a := createTestClient(hub, "a", 8)
	b := createTestClient(hub, "b", 8)
	hub.Join(a, "thread:T")
	hub.Join(b, "thread:T")

	relay := NewRedisRelay(rdb, hub)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(RelayChannel)[RelayChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	relay.Emit([]string{"thread:T"}, EventTypingStart, TypingPayload{}, a.ID())

	f := receiveFrame(t, b)
	assert.Equal(t, EventTypingStart, f.Event)
	assert.NotNil(t, f.Data)
	assertNothing(t, a)
}

func TestRedisRelay_IgnoresMalformedEnvelopes(t *testing.T) {
	hub := setupHub(t)
	a := createTestClient(hub, "a", 8)
	hub.Join(a, "thread:T")

	relay := &RedisRelay{hub: hub, channel: RelayChannel}
	relay.deliver("{not json")
	assertNothing(t, a)
}
