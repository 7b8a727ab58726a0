package event

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

const (
	// DefaultVerifyRadiusMeters is how close a user must be to verify an event.
	DefaultVerifyRadiusMeters = 50
	// DefaultVerifyQuorum is the number of verifiers that makes a draft event verified.
	DefaultVerifyQuorum = 3

	maxTitleLength = 200
	maxTags        = 20
)

// Config configures the service.
type Config struct {
	VerifyRadiusMeters float64
	VerifyQuorum       int
	Populate           populate.Config
}

type service struct {
	store     Store
	publisher pubsub.Publisher
	config    Config
	events    *populate.Registry[EventView]
}

// NewService creates a new event service.
func NewService(st Store, publisher pubsub.Publisher, config Config) Service {
	if publisher == nil {
		publisher = pubsub.Nop{}
	}
	if config.VerifyRadiusMeters <= 0 {
		config.VerifyRadiusMeters = DefaultVerifyRadiusMeters
	}
	if config.VerifyQuorum <= 0 {
		config.VerifyQuorum = DefaultVerifyQuorum
	}
	return &service{
		store:     st,
		publisher: publisher,
		config:    config,
		events:    NewRegistry(st, config.Populate),
	}
}

// NewRegistry declares the populatable fields of an event.
func NewRegistry(st Store, config populate.Config) *populate.Registry[EventView] {
	return populate.NewRegistry[EventView]("event", config).Register(
		populate.NewField("tags",
			func(ctx context.Context, v *EventView) ([]*store.Tag, error) {
				return st.ListEventTags(ctx, v.ID)
			},
			func(v *EventView, tags []*store.Tag) { v.Tags = tags },
			[]*store.Tag{},
		),
		populate.NewField("media",
			func(ctx context.Context, v *EventView) ([]*store.Media, error) {
				return st.ListEventMedia(ctx, v.ID)
			},
			func(v *EventView, media []*store.Media) { v.Media = media },
			[]*store.Media{},
		),
		populate.NewField("creator",
			func(ctx context.Context, v *EventView) (*store.User, error) {
				return st.GetUser(ctx, &store.FindUser{ID: &v.CreatorID})
			},
			func(v *EventView, user *store.User) { v.Creator = user },
			nil,
		),
		populate.NewField("participants",
			func(ctx context.Context, v *EventView) ([]*ParticipantView, error) {
				participants, err := st.ListEventParticipants(ctx, v.ID)
				if err != nil {
					return nil, err
				}
				views := make([]*ParticipantView, len(participants))
				for i, p := range participants {
					views[i] = &ParticipantView{EventParticipant: p}
				}
				err = populate.AttachUsers(ctx, views,
					func(p *ParticipantView) int32 { return p.UserID },
					func(p *ParticipantView, user *store.User) { p.User = user },
					st.GetUsersByIDs,
				)
				return views, err
			},
			func(v *EventView, participants []*ParticipantView) { v.Participants = participants },
			[]*ParticipantView{},
		),
		populate.NewField("verifiers",
			func(ctx context.Context, v *EventView) ([]*VerifierView, error) {
				verifiers, err := st.ListEventVerifiers(ctx, v.ID)
				if err != nil {
					return nil, err
				}
				views := make([]*VerifierView, len(verifiers))
				for i, verifier := range verifiers {
					views[i] = &VerifierView{EventVerifier: verifier}
				}
				err = populate.AttachUsers(ctx, views,
					func(p *VerifierView) int32 { return p.UserID },
					func(p *VerifierView, user *store.User) { p.User = user },
					st.GetUsersByIDs,
				)
				return views, err
			},
			func(v *EventView, verifiers []*VerifierView) { v.Verifiers = verifiers },
			[]*VerifierView{},
		),
		populate.NewField("reactions",
			func(ctx context.Context, v *EventView) ([]*store.Reaction, error) {
				return st.ListReactionsFor(ctx, store.ReactionOnEvent, v.ID)
			},
			func(v *EventView, reactions []*store.Reaction) { v.Reactions = reactions },
			[]*store.Reaction{},
		),
	)
}

func (s *service) emit(ctx context.Context, event string, payload any) {
	if err := s.publisher.Emit(ctx, event, payload); err != nil {
		slog.Warn("failed to emit", "event", event, "error", err)
	}
}

// getEvent returns the event or NOT_FOUND.
func (s *service) getEvent(ctx context.Context, id int32) (*store.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apierrors.NotFound("event", id)
	}
	return event, nil
}

// getOwnedEvent returns the event when userID created it.
func (s *service) getOwnedEvent(ctx context.Context, userID, id int32) (*store.Event, error) {
	event, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.CreatorID != userID {
		return nil, apierrors.Forbidden("Only the event creator can modify this event")
	}
	return event, nil
}

func validateSchedule(startTs, endTs int64) error {
	if startTs < 0 || endTs < 0 {
		return apierrors.BadRequest("Event times must not be negative")
	}
	if startTs > 0 && endTs > 0 && endTs < startTs {
		return apierrors.BadRequest("Event cannot end before it starts")
	}
	return nil
}

func (s *service) CreateEvent(ctx context.Context, userID int32, create *CreateEventRequest) (*store.Event, error) {
	title := strings.TrimSpace(create.Title)
	if title == "" {
		return nil, apierrors.BadRequest("Event title is required")
	}
	if len(title) > maxTitleLength {
		return nil, apierrors.BadRequest("Event title is too long")
	}
	if !(Coordinates{Latitude: create.Latitude, Longitude: create.Longitude}).valid() {
		return nil, apierrors.BadRequest("Event coordinates are out of range")
	}
	if err := validateSchedule(create.StartTs, create.EndTs); err != nil {
		return nil, err
	}
	if len(create.Tags) > maxTags {
		return nil, apierrors.BadRequest("Too many tags")
	}
	for _, name := range create.Tags {
		if !validTagName(store.NormalizeTagName(name)) {
			return nil, apierrors.BadRequest("Invalid tag name")
		}
	}

	// Tags are shared, so they are ensured before the event transaction.
	tags := make([]*store.Tag, 0, len(create.Tags))
	for _, name := range create.Tags {
		tag, err := s.store.EnsureTag(ctx, store.NormalizeTagName(name))
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	var event *store.Event
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		event, err = s.store.CreateEvent(ctx, &store.Event{
			CreatorID:   userID,
			Title:       title,
			Description: create.Description,
			Latitude:    create.Latitude,
			Longitude:   create.Longitude,
			StartTs:     create.StartTs,
			EndTs:       create.EndTs,
		})
		if err != nil {
			return err
		}
		if _, err := s.store.UpsertEventParticipant(ctx, &store.EventParticipant{EventID: event.ID, UserID: userID, Role: store.RoleHost}); err != nil {
			return errors.Wrap(err, "failed to add host")
		}
		for _, tag := range tags {
			if err := s.store.AddEventTag(ctx, event.ID, tag.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if event != nil {
			// The event was cached before the rollback.
			s.store.InvalidateEvent(ctx, event.ID)
		}
		return nil, err
	}
	s.emit(ctx, pubsub.EventCreated, event)
	return s.store.GetEvent(ctx, event.ID)
}

func (s *service) GetEvent(ctx context.Context, id int32, req populate.Request) (*EventView, error) {
	event, err := s.getEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &EventView{Event: event}
	s.events.Populate(ctx, view, req)
	return view, nil
}

// eventPagination accepts createdAt, updatedAt and startTs.
var eventPagination = pagination.DefaultConfig().WithSort("startTs", "start_ts")

func eventSortKey(sortBy string) pagination.KeyFunc[*store.Event] {
	switch sortBy {
	case "updatedAt":
		return func(e *store.Event) (int64, int32) { return e.UpdatedTs, e.ID }
	case "startTs":
		return func(e *store.Event) (int64, int32) { return e.StartTs, e.ID }
	}
	return func(e *store.Event) (int64, int32) { return e.CreatedTs, e.ID }
}

func (s *service) ListEvents(ctx context.Context, list *ListEventsRequest) (*pagination.Page[*EventView], error) {
	if list.Status != nil && !list.Status.Valid() {
		return nil, apierrors.BadRequest("Unsupported event status")
	}
	find := &store.FindEvent{
		Status:    list.Status,
		CreatorID: list.CreatorID,
	}
	if search := strings.TrimSpace(list.Search); search != "" {
		find.Search = &search
	}
	fetch := func(ctx context.Context, w pagination.Window) ([]*store.Event, error) {
		windowed := *find
		windowed.Window = &w
		return s.store.ListEvents(ctx, &windowed)
	}
	page, err := pagination.Paginate(ctx, list.Cursor, eventPagination, fetch, eventSortKey(list.Cursor.SortBy))
	if err != nil {
		return nil, err
	}

	views := make([]*EventView, len(page.Items))
	for i, event := range page.Items {
		views[i] = &EventView{Event: event}
	}
	s.events.PopulateMany(ctx, views, list.Populate)
	return &pagination.Page[*EventView]{Items: views, Pagination: page.Pagination}, nil
}

func (s *service) UpdateEvent(ctx context.Context, userID, id int32, update *UpdateEventRequest) (*store.Event, error) {
	event, err := s.getOwnedEvent(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	patch := &store.UpdateEvent{
		ID:          id,
		Description: update.Description,
		Latitude:    update.Latitude,
		Longitude:   update.Longitude,
		StartTs:     update.StartTs,
		EndTs:       update.EndTs,
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, apierrors.BadRequest("Invalid event title")
		}
		patch.Title = &title
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, apierrors.BadRequest("Unsupported event status")
		}
		// Verification happens through on-site checks only.
		if *update.Status == store.EventVerified && event.Status != store.EventVerified {
			return nil, apierrors.BadRequest("Events are verified by attendees")
		}
		patch.Status = update.Status
	}
	at := Coordinates{Latitude: event.Latitude, Longitude: event.Longitude}
	if update.Latitude != nil {
		at.Latitude = *update.Latitude
	}
	if update.Longitude != nil {
		at.Longitude = *update.Longitude
	}
	if !at.valid() {
		return nil, apierrors.BadRequest("Event coordinates are out of range")
	}
	startTs, endTs := event.StartTs, event.EndTs
	if update.StartTs != nil {
		startTs = *update.StartTs
	}
	if update.EndTs != nil {
		endTs = *update.EndTs
	}
	if err := validateSchedule(startTs, endTs); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateEvent(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.EventUpdated, updated)
	return updated, nil
}

func (s *service) DeleteEvent(ctx context.Context, userID, id int32) error {
	if _, err := s.getOwnedEvent(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, &store.DeleteEvent{ID: id}); err != nil {
		return err
	}
	s.emit(ctx, pubsub.EventDeleted, map[string]int32{"id": id})
	return nil
}
