package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/store/cache"
)

// EventStatus is the lifecycle status of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventVerified  EventStatus = "verified"
	EventCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventVerified, EventCancelled:
		return true
	}
	return false
}

type Event struct {
	ID int32 `json:"id"`
	// UID is the public identifier of the event.
	UID string `json:"uid"`

	// Standard fields
	RowStatus RowStatus `json:"rowStatus"`
	CreatorID int32     `json:"creatorId"`
	CreatedTs int64     `json:"createdTs"`
	UpdatedTs int64     `json:"updatedTs"`

	// Domain specific fields
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      EventStatus `json:"status"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	StartTs     int64       `json:"startTs"`
	EndTs       int64       `json:"endTs"`

	// Composed field
	ParticipantCount int32 `json:"participantCount"`
}

type FindEvent struct {
	ID        *int32
	UID       *string
	IDList    []int32
	CreatorID *int32
	Status    *EventStatus
	// Search matches title or description, case-insensitively.
	Search          *string
	IncludeArchived bool
	// ForUpdate locks the selected rows until the surrounding transaction ends,
	// on drivers that support row locks.
	ForUpdate bool

	// Window takes precedence over Limit and Offset.
	Window *pagination.Window
	Limit  *int
	Offset *int
}

type UpdateEvent struct {
	ID          int32
	UpdatedTs   *int64
	RowStatus   *RowStatus
	Title       *string
	Description *string
	Status      *EventStatus
	Latitude    *float64
	Longitude   *float64
	StartTs     *int64
	EndTs       *int64
}

type DeleteEvent struct {
	ID int32
}

func (s *Store) CreateEvent(ctx context.Context, create *Event) (*Event, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.Status == "" {
		create.Status = EventDraft
	}
	if !create.Status.Valid() {
		return nil, errors.Errorf("invalid event status %q", create.Status)
	}
	if create.RowStatus == "" {
		create.RowStatus = Normal
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	event, err := s.driver.CreateEvent(ctx, create)
	if err != nil {
		return nil, err
	}
	s.eventCache.SetByID(ctx, event.ID, event, 0)
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error) {
	return s.driver.ListEvents(ctx, find)
}

func (s *Store) CountEvents(ctx context.Context, find *FindEvent) (int64, error) {
	return s.driver.CountEvents(ctx, find)
}

// GetEvent reads the event through the cache. It returns nil when the event does not exist.
func (s *Store) GetEvent(ctx context.Context, id int32) (*Event, error) {
	return cache.ReadThrough(ctx, s.eventCache, id, func(ctx context.Context) (*Event, error) {
		list, err := s.ListEvents(ctx, &FindEvent{ID: &id})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	})
}

// GetEventForUpdate bypasses the cache and locks the row; use it inside WithTx.
func (s *Store) GetEventForUpdate(ctx context.Context, id int32) (*Event, error) {
	list, err := s.ListEvents(ctx, &FindEvent{ID: &id, IncludeArchived: true, ForUpdate: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateEvent updates the record, then drops the cached event and its composites.
func (s *Store) UpdateEvent(ctx context.Context, update *UpdateEvent) (*Event, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, errors.Errorf("invalid event status %q", *update.Status)
	}
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	event, err := s.driver.UpdateEvent(ctx, update)
	if err != nil {
		return nil, err
	}
	s.InvalidateEvent(ctx, update.ID)
	return event, nil
}

// DeleteEvent archives the event.
func (s *Store) DeleteEvent(ctx context.Context, delete *DeleteEvent) error {
	if err := s.driver.DeleteEvent(ctx, delete); err != nil {
		return err
	}
	s.InvalidateEvent(ctx, delete.ID)
	return nil
}

// InvalidateEvent drops the cached event and every composite derived from it.
func (s *Store) InvalidateEvent(ctx context.Context, id int32) {
	s.eventCache.Invalidate(ctx, id, nil)
}

// ListEventTags returns the tags of an event, cached as the event's tags composite.
func (s *Store) ListEventTags(ctx context.Context, eventID int32) ([]*Tag, error) {
	return cache.Load(ctx, s.eventTags, eventID, func(ctx context.Context) ([]*Tag, error) {
		return s.ListTags(ctx, &FindTag{EventID: &eventID})
	})
}

// AddEventTag links a tag to an event, then drops the event's tags composite
// and the tag's cached usage count.
func (s *Store) AddEventTag(ctx context.Context, eventID, tagID int32) error {
	if err := s.driver.UpsertEventTag(ctx, &EventTag{EventID: eventID, TagID: tagID, CreatedTs: time.Now().Unix()}); err != nil {
		return err
	}
	s.eventTags.Invalidate(ctx, eventID)
	s.tagCache.Invalidate(ctx, tagID, nil)
	return nil
}

// RemoveEventTag unlinks a tag from an event, then drops the same caches as AddEventTag.
func (s *Store) RemoveEventTag(ctx context.Context, eventID, tagID int32) error {
	if err := s.driver.DeleteEventTag(ctx, &EventTag{EventID: eventID, TagID: tagID}); err != nil {
		return err
	}
	s.eventTags.Invalidate(ctx, eventID)
	s.tagCache.Invalidate(ctx, tagID, nil)
	return nil
}

// ListEventMedia returns the media of an event, cached as the event's media composite.
func (s *Store) ListEventMedia(ctx context.Context, eventID int32) ([]*Media, error) {
	return cache.Load(ctx, s.eventMedia, eventID, func(ctx context.Context) ([]*Media, error) {
		return s.ListMedia(ctx, &FindMedia{EventID: &eventID})
	})
}

// ListEventParticipants returns the participants of an event, cached as the event's participants composite.
func (s *Store) ListEventParticipants(ctx context.Context, eventID int32) ([]*EventParticipant, error) {
	return cache.Load(ctx, s.eventParticipants, eventID, func(ctx context.Context) ([]*EventParticipant, error) {
		return s.driver.ListEventParticipants(ctx, &FindEventParticipant{EventID: &eventID})
	})
}

// UpsertEventParticipant adds or updates a participant. The event itself is
// invalidated too since it carries the participant count.
func (s *Store) UpsertEventParticipant(ctx context.Context, upsert *EventParticipant) (*EventParticipant, error) {
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = time.Now().Unix()
	}
	participant, err := s.driver.UpsertEventParticipant(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.eventParticipants.Invalidate(ctx, upsert.EventID)
	s.eventCache.Evict(ctx, upsert.EventID)
	return participant, nil
}

func (s *Store) DeleteEventParticipant(ctx context.Context, delete *DeleteEventParticipant) error {
	if err := s.driver.DeleteEventParticipant(ctx, delete); err != nil {
		return err
	}
	s.eventParticipants.Invalidate(ctx, delete.EventID)
	s.eventCache.Evict(ctx, delete.EventID)
	return nil
}

// ListEventVerifiers returns the verifiers of an event, cached as the event's verifiers composite.
func (s *Store) ListEventVerifiers(ctx context.Context, eventID int32) ([]*EventVerifier, error) {
	return cache.Load(ctx, s.eventVerifiers, eventID, func(ctx context.Context) ([]*EventVerifier, error) {
		return s.driver.ListEventVerifiers(ctx, &FindEventVerifier{EventID: &eventID})
	})
}

// CountEventVerifiers counts the verifiers of an event from the record store.
func (s *Store) CountEventVerifiers(ctx context.Context, eventID int32) (int, error) {
	list, err := s.driver.ListEventVerifiers(ctx, &FindEventVerifier{EventID: &eventID})
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// CreateEventVerifier records an on-site verification, then drops the event's verifiers composite.
func (s *Store) CreateEventVerifier(ctx context.Context, create *EventVerifier) (*EventVerifier, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	verifier, err := s.driver.CreateEventVerifier(ctx, create)
	if err != nil {
		return nil, err
	}
	s.eventVerifiers.Invalidate(ctx, create.EventID)
	return verifier, nil
}
