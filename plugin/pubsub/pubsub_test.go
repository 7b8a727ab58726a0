package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockPayload struct {
	ThreadID int32 `json:"threadId"`
}

func TestBusDelivery(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()

	var got []string
	unsubscribe := bus.Subscribe(ThreadLocked, func(_ context.Context, msg *Message) {
		var payload lockPayload
		require.NoError(t, msg.Decode(&payload))
		assert.Equal(t, int32(3), payload.ThreadID)
		got = append(got, "locked")
	})
	bus.Subscribe(Wildcard, func(_ context.Context, msg *Message) {
		got = append(got, "any:"+msg.Event)
	})

	require.NoError(t, bus.Emit(ctx, ThreadLocked, lockPayload{ThreadID: 3}))
	require.NoError(t, bus.Emit(ctx, EventUpdated, map[string]int{"id": 1}))
	assert.Equal(t, []string{"locked", "any:thread.locked", "any:event.updated"}, got)

	unsubscribe()
	got = nil
	require.NoError(t, bus.Emit(ctx, ThreadLocked, lockPayload{ThreadID: 3}))
	assert.Equal(t, []string{"any:thread.locked"}, got)
}

func TestBusHandlerPanicIsContained(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(EventDeleted, func(context.Context, *Message) { panic("boom") })
	bus.Subscribe(EventDeleted, func(context.Context, *Message) { called = true })

	require.NoError(t, bus.Emit(context.Background(), EventDeleted, nil))
	assert.True(t, called)
}

func TestBusRejectsUnencodablePayload(t *testing.T) {
	bus := NewBus()
	err := bus.Emit(context.Background(), EventUpdated, make(chan int))
	assert.Error(t, err)
}

func TestRedisPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	publisher := NewRedisPublisher(client, "")
	assert.Equal(t, "plaza:thread.locked", publisher.Channel(ThreadLocked))

	bus := NewBus()
	var mu sync.Mutex
	var received []*Message
	bus.Subscribe(ThreadLocked, func(_ context.Context, msg *Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})
	require.NoError(t, publisher.Relay(ctx, bus))

	require.NoError(t, publisher.Emit(ctx, ThreadLocked, lockPayload{ThreadID: 11}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var payload lockPayload
	require.NoError(t, received[0].Decode(&payload))
	assert.Equal(t, int32(11), payload.ThreadID)
	assert.Equal(t, ThreadLocked, received[0].Event)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Emit(context.Background(), EventCreated, struct{}{}))
}
