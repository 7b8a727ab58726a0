// Package event implements events and their relations: tags, media,
// participants, on-site verification and reactions.
package event

import (
	"context"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/store"
)

// Service defines the event operations exposed to the API layer.
type Service interface {
	CreateEvent(ctx context.Context, userID int32, create *CreateEventRequest) (*store.Event, error)
	GetEvent(ctx context.Context, id int32, req populate.Request) (*EventView, error)
	ListEvents(ctx context.Context, list *ListEventsRequest) (*pagination.Page[*EventView], error)
	UpdateEvent(ctx context.Context, userID, id int32, update *UpdateEventRequest) (*store.Event, error)
	DeleteEvent(ctx context.Context, userID, id int32) error

	AddTag(ctx context.Context, userID, eventID int32, name string) (*store.Tag, error)
	RemoveTag(ctx context.Context, userID, eventID, tagID int32) error

	AddMedia(ctx context.Context, userID, eventID int32, create *AddMediaRequest) (*store.Media, error)
	RemoveMedia(ctx context.Context, userID, eventID, mediaID int32) error

	Join(ctx context.Context, userID, eventID int32) (*store.EventParticipant, error)
	Leave(ctx context.Context, userID, eventID int32) error

	// Verify records that the user is at the event location. The event moves
	// from draft to verified once enough users have verified it.
	Verify(ctx context.Context, userID, eventID int32, at Coordinates) (*VerifyResult, error)
}

// Store is the interface for store operations needed by the event service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error)
	GetEvent(ctx context.Context, id int32) (*store.Event, error)
	ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error)
	UpdateEvent(ctx context.Context, update *store.UpdateEvent) (*store.Event, error)
	DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error
	GetEventForUpdate(ctx context.Context, id int32) (*store.Event, error)
	InvalidateEvent(ctx context.Context, id int32)

	ListEventTags(ctx context.Context, eventID int32) ([]*store.Tag, error)
	AddEventTag(ctx context.Context, eventID, tagID int32) error
	RemoveEventTag(ctx context.Context, eventID, tagID int32) error
	EnsureTag(ctx context.Context, name string) (*store.Tag, error)

	ListEventMedia(ctx context.Context, eventID int32) ([]*store.Media, error)
	CreateMedia(ctx context.Context, create *store.Media) (*store.Media, error)
	GetMedia(ctx context.Context, id int32) (*store.Media, error)
	DeleteMedia(ctx context.Context, delete *store.DeleteMedia) error

	ListEventParticipants(ctx context.Context, eventID int32) ([]*store.EventParticipant, error)
	UpsertEventParticipant(ctx context.Context, upsert *store.EventParticipant) (*store.EventParticipant, error)
	DeleteEventParticipant(ctx context.Context, delete *store.DeleteEventParticipant) error

	ListEventVerifiers(ctx context.Context, eventID int32) ([]*store.EventVerifier, error)
	CreateEventVerifier(ctx context.Context, create *store.EventVerifier) (*store.EventVerifier, error)
	CountEventVerifiers(ctx context.Context, eventID int32) (int, error)

	ListReactionsFor(ctx context.Context, contentType store.ReactionContentType, contentID int32) ([]*store.Reaction, error)

	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	GetUsersByIDs(ctx context.Context, ids []int32) (map[int32]*store.User, error)
}

// CreateEventRequest represents the request to create an event.
type CreateEventRequest struct {
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	StartTs     int64
	EndTs       int64
	Tags        []string
}

// UpdateEventRequest carries the fields to change; nil fields are kept.
type UpdateEventRequest struct {
	Title       *string
	Description *string
	Status      *store.EventStatus
	Latitude    *float64
	Longitude   *float64
	StartTs     *int64
	EndTs       *int64
}

// ListEventsRequest filters and pages an event listing.
type ListEventsRequest struct {
	Status    *store.EventStatus
	CreatorID *int32
	Search    string
	Cursor    pagination.Cursor
	Populate  populate.Request
}

// AddMediaRequest represents the request to attach media to an event.
type AddMediaRequest struct {
	URL  string
	Type string
}

// Coordinates is a WGS84 position in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	Event          *store.Event         `json:"event"`
	Verifier       *store.EventVerifier `json:"verifier"`
	DistanceMeters float64              `json:"distanceMeters"`
}

// EventView is an event with its resolved relations.
type EventView struct {
	*store.Event

	Creator      *store.User        `json:"creator,omitempty"`
	Tags         []*store.Tag       `json:"tags,omitempty"`
	Media        []*store.Media     `json:"media,omitempty"`
	Participants []*ParticipantView `json:"participants,omitempty"`
	Verifiers    []*VerifierView    `json:"verifiers,omitempty"`
	Reactions    []*store.Reaction  `json:"reactions,omitempty"`
}

// ParticipantView is a participant with its user.
type ParticipantView struct {
	*store.EventParticipant

	User *store.User `json:"user,omitempty"`
}

// VerifierView is a verifier with its user.
type VerifierView struct {
	*store.EventVerifier

	User *store.User `json:"user,omitempty"`
}
