package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// WithTx runs fn in a transaction. Driver calls made with the ctx passed
	// to fn use that transaction; fn returning an error rolls it back.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	CountUsers(ctx context.Context, find *FindUser) (int64, error)
	DeleteUser(ctx context.Context, delete *DeleteUser) error

	// Event model related methods.
	CreateEvent(ctx context.Context, create *Event) (*Event, error)
	ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error)
	CountEvents(ctx context.Context, find *FindEvent) (int64, error)
	UpdateEvent(ctx context.Context, update *UpdateEvent) (*Event, error)
	DeleteEvent(ctx context.Context, delete *DeleteEvent) error

	// Event relation related methods.
	UpsertEventTag(ctx context.Context, upsert *EventTag) error
	ListEventTags(ctx context.Context, find *FindEventTag) ([]*EventTag, error)
	DeleteEventTag(ctx context.Context, delete *EventTag) error
	UpsertEventParticipant(ctx context.Context, upsert *EventParticipant) (*EventParticipant, error)
	ListEventParticipants(ctx context.Context, find *FindEventParticipant) ([]*EventParticipant, error)
	DeleteEventParticipant(ctx context.Context, delete *DeleteEventParticipant) error
	CreateEventVerifier(ctx context.Context, create *EventVerifier) (*EventVerifier, error)
	ListEventVerifiers(ctx context.Context, find *FindEventVerifier) ([]*EventVerifier, error)

	// Tag model related methods.
	CreateTag(ctx context.Context, create *Tag) (*Tag, error)
	ListTags(ctx context.Context, find *FindTag) ([]*Tag, error)
	CountTags(ctx context.Context, find *FindTag) (int64, error)
	DeleteTag(ctx context.Context, delete *DeleteTag) error

	// Media model related methods.
	CreateMedia(ctx context.Context, create *Media) (*Media, error)
	ListMedia(ctx context.Context, find *FindMedia) ([]*Media, error)
	DeleteMedia(ctx context.Context, delete *DeleteMedia) error

	// Thread model related methods.
	CreateThread(ctx context.Context, create *Thread) (*Thread, error)
	ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error)
	UpdateThread(ctx context.Context, update *UpdateThread) (*Thread, error)
	DeleteThread(ctx context.Context, delete *DeleteThread) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)

	// Reaction model related methods.
	UpsertReaction(ctx context.Context, upsert *Reaction) (*Reaction, error)
	ListReactions(ctx context.Context, find *FindReaction) ([]*Reaction, error)
	DeleteReaction(ctx context.Context, delete *DeleteReaction) error
}
