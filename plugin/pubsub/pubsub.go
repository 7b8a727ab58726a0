// Package pubsub broadcasts entity change notifications.
//
// Services emit after a mutation has been committed and its caches
// invalidated. Delivery is best effort: a failed emit is logged by the
// caller and never undoes the mutation.
package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Event names.
const (
	EventCreated      = "event.created"
	EventUpdated      = "event.updated"
	EventDeleted      = "event.deleted"
	EventVerified     = "event.verified"
	ThreadCreated     = "thread.created"
	ThreadLocked      = "thread.locked"
	ThreadUnlocked    = "thread.unlocked"
	MessageCreated    = "message.created"
	ReactionCreated   = "reaction.created"
	ReactionDeleted   = "reaction.deleted"
	ParticipantJoined = "participant.joined"
	ParticipantLeft   = "participant.left"
)

// Wildcard subscribes to every event.
const Wildcard = "*"

// Publisher emits notifications.
type Publisher interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Message is the envelope delivered to subscribers.
type Message struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt int64           `json:"emittedAt"`
}

// NewMessage encodes payload into a message for event.
func NewMessage(event string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", event)
	}
	return &Message{Event: event, Payload: data, EmittedAt: time.Now().Unix()}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Handler receives delivered messages.
type Handler func(ctx context.Context, msg *Message)

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, any) error { return nil }

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to in-process subscribers. Handlers run synchronously
// on the emitting goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for event (or Wildcard) and returns a function
// that removes it.
func (b *Bus) Subscribe(event string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, sub := range list {
			if sub.id == id {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers payload to the subscribers of event and of Wildcard.
func (b *Bus) Emit(ctx context.Context, event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	b.Deliver(ctx, msg)
	return nil
}

// Deliver hands an already encoded message to subscribers.
func (b *Bus) Deliver(ctx context.Context, msg *Message) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[msg.Event])+len(b.subs[Wildcard]))
	for _, sub := range b.subs[msg.Event] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.subs[Wildcard] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.call(ctx, handler, msg)
	}
}

func (b *Bus) call(ctx context.Context, handler Handler, msg *Message) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("pubsub handler panicked", "event", msg.Event, "panic", p)
		}
	}()
	handler(ctx, msg)
}
