package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
	storetest "github.com/hrygo/plaza/store/test"
)

// Alexanderplatz, and points roughly 22 meters and 1.1 kilometers north of it.
var (
	venue = Coordinates{Latitude: 52.5219, Longitude: 13.4132}
	near  = Coordinates{Latitude: 52.5221, Longitude: 13.4132}
	far   = Coordinates{Latitude: 52.5319, Longitude: 13.4132}
)

type fixture struct {
	store   *store.Store
	service Service

	mu       sync.Mutex
	messages []*pubsub.Message
}

func newFixture(ctx context.Context, t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storetest.NewTestingStore(ctx, t)}
	f.service = NewService(f.store, f.bus(), Config{})
	return f
}

func (f *fixture) bus() *pubsub.Bus {
	bus := pubsub.NewBus()
	bus.Subscribe(pubsub.Wildcard, func(_ context.Context, msg *pubsub.Message) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.messages = append(f.messages, msg)
	})
	return bus
}

func (f *fixture) emitted(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.messages {
		if msg.Event == event {
			n++
		}
	}
	return n
}

func (f *fixture) createUser(ctx context.Context, t *testing.T, username string) *store.User {
	t.Helper()
	user, err := f.store.CreateUser(ctx, &store.User{Username: username, Email: username + "@example.com", Nickname: username})
	require.NoError(t, err)
	return user
}

func (f *fixture) createEvent(ctx context.Context, t *testing.T, creatorID int32, title string, tags ...string) *store.Event {
	t.Helper()
	event, err := f.service.CreateEvent(ctx, creatorID, &CreateEventRequest{
		Title:     title,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
		StartTs:   1700000000,
		EndTs:     1700003600,
		Tags:      tags,
	})
	require.NoError(t, err)
	return event
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, 0, DistanceMeters(venue, venue), 0.001)
	assert.InDelta(t, 22.2, DistanceMeters(venue, near), 0.5)
	assert.InDelta(t, 1111.9, DistanceMeters(venue, far), 2)
	// Berlin to Paris.
	assert.InDelta(t, 877_000, DistanceMeters(Coordinates{52.52, 13.405}, Coordinates{48.8566, 2.3522}), 3_000)
}

func TestCreateEventValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")

	tests := []struct {
		name   string
		create *CreateEventRequest
	}{
		{"blank title", &CreateEventRequest{Title: "   "}},
		{"latitude out of range", &CreateEventRequest{Title: "Meetup", Latitude: 91}},
		{"longitude out of range", &CreateEventRequest{Title: "Meetup", Longitude: -181}},
		{"ends before start", &CreateEventRequest{Title: "Meetup", StartTs: 200, EndTs: 100}},
		{"invalid tag", &CreateEventRequest{Title: "Meetup", Tags: []string{"  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateEvent(ctx, host.ID, tt.create)
			assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest), "got %v", err)
		})
	}
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")

	event := f.createEvent(ctx, t, host.ID, "  Street food market ", "Food", "outdoor")
	assert.Equal(t, "Street food market", event.Title)
	assert.Equal(t, store.EventDraft, event.Status)
	assert.NotEmpty(t, event.UID)
	assert.EqualValues(t, 1, event.ParticipantCount)
	assert.Equal(t, 1, f.emitted(pubsub.EventCreated))

	view, err := f.service.GetEvent(ctx, event.ID, populate.AllFields)
	require.NoError(t, err)
	require.NotNil(t, view.Creator)
	assert.Equal(t, "host", view.Creator.Username)
	require.Len(t, view.Tags, 2)
	require.Len(t, view.Participants, 1)
	assert.Equal(t, store.RoleHost, view.Participants[0].Role)
	require.NotNil(t, view.Participants[0].User)
	assert.Equal(t, host.ID, view.Participants[0].User.ID)
	assert.Empty(t, view.Verifiers)
	assert.NotNil(t, view.Reactions)

	_, err = f.service.GetEvent(ctx, 9999, populate.None)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

// failingTagLinks fails every event-tag link.
type failingTagLinks struct {
	*store.Store
}

func (failingTagLinks) AddEventTag(context.Context, int32, int32) error {
	return errors.New("link failed")
}

func TestCreateEventRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")

	svc := NewService(failingTagLinks{f.store}, nil, Config{})
	_, err := svc.CreateEvent(ctx, host.ID, &CreateEventRequest{
		Title:     "Flea market",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
		Tags:      []string{"vintage"},
	})
	require.Error(t, err)

	events, err := f.store.ListEvents(ctx, &store.FindEvent{CreatorID: &host.ID, IncludeArchived: true})
	require.NoError(t, err)
	assert.Empty(t, events)
	// The first event id would have been 1; neither the cache nor the record store has it.
	got, err := f.store.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
	participants, err := f.store.ListEventParticipants(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestCreatorGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	other := f.createUser(ctx, t, "other")
	event := f.createEvent(ctx, t, host.ID, "Book swap")

	title := "Hijacked"
	_, err := f.service.UpdateEvent(ctx, other.ID, event.ID, &UpdateEventRequest{Title: &title})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))
	_, err = f.service.AddTag(ctx, other.ID, event.ID, "books")
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))
	assert.True(t, apierrors.IsCode(f.service.DeleteEvent(ctx, other.ID, event.ID), apierrors.ErrCodeForbidden))

	verified := store.EventVerified
	_, err = f.service.UpdateEvent(ctx, host.ID, event.ID, &UpdateEventRequest{Status: &verified})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))

	title = "Big book swap"
	updated, err := f.service.UpdateEvent(ctx, host.ID, event.ID, &UpdateEventRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 1, f.emitted(pubsub.EventUpdated))

	require.NoError(t, f.service.DeleteEvent(ctx, host.ID, event.ID))
	_, err = f.service.GetEvent(ctx, event.ID, populate.None)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

func TestTagsAndMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	guest := f.createUser(ctx, t, "guest")
	stranger := f.createUser(ctx, t, "stranger")
	event := f.createEvent(ctx, t, host.ID, "Night run")

	tag, err := f.service.AddTag(ctx, host.ID, event.ID, "Running")
	require.NoError(t, err)
	assert.Equal(t, "running", tag.Name)

	view, err := f.service.GetEvent(ctx, event.ID, populate.Fields("tags"))
	require.NoError(t, err)
	require.Len(t, view.Tags, 1)
	assert.Nil(t, view.Media)

	require.NoError(t, f.service.RemoveTag(ctx, host.ID, event.ID, tag.ID))
	view, err = f.service.GetEvent(ctx, event.ID, populate.Fields("tags"))
	require.NoError(t, err)
	assert.Empty(t, view.Tags)

	_, err = f.service.AddMedia(ctx, guest.ID, event.ID, &AddMediaRequest{URL: "ftp://example.com/a.png"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))

	media, err := f.service.AddMedia(ctx, guest.ID, event.ID, &AddMediaRequest{URL: "https://cdn.example.com/run.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "image", media.Type)

	err = f.service.RemoveMedia(ctx, stranger.ID, event.ID, media.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))
	// The event creator may remove media uploaded by others.
	require.NoError(t, f.service.RemoveMedia(ctx, host.ID, event.ID, media.ID))
	err = f.service.RemoveMedia(ctx, host.ID, event.ID, media.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

func TestJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	guest := f.createUser(ctx, t, "guest")
	event := f.createEvent(ctx, t, host.ID, "Picnic")

	participant, err := f.service.Join(ctx, guest.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleGuest, participant.Role)
	// Joining twice keeps a single row.
	_, err = f.service.Join(ctx, guest.ID, event.ID)
	require.NoError(t, err)

	view, err := f.service.GetEvent(ctx, event.ID, populate.Fields("participants"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, view.ParticipantCount)
	assert.Len(t, view.Participants, 2)

	assert.True(t, apierrors.IsCode(f.service.Leave(ctx, host.ID, event.ID), apierrors.ErrCodeBadRequest))
	require.NoError(t, f.service.Leave(ctx, guest.ID, event.ID))
	assert.True(t, apierrors.IsCode(f.service.Leave(ctx, guest.ID, event.ID), apierrors.ErrCodeNotFound))
	assert.Equal(t, 2, f.emitted(pubsub.ParticipantJoined))
	assert.Equal(t, 1, f.emitted(pubsub.ParticipantLeft))

	view, err = f.service.GetEvent(ctx, event.ID, populate.None)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.ParticipantCount)
}

func TestVerifyDistance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	walker := f.createUser(ctx, t, "walker")
	event := f.createEvent(ctx, t, host.ID, "Flea market")

	_, err := f.service.Verify(ctx, walker.ID, event.ID, far)
	coded, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeBadRequest, coded.Code)
	assert.Contains(t, coded.Message, "1112 meters away")
	assert.InDelta(t, 1112, coded.Context["distanceMeters"], 2)

	result, err := f.service.Verify(ctx, walker.ID, event.ID, near)
	require.NoError(t, err)
	assert.Equal(t, walker.ID, result.Verifier.UserID)
	assert.Less(t, result.DistanceMeters, float64(DefaultVerifyRadiusMeters))
	assert.Equal(t, store.EventDraft, result.Event.Status)

	_, err = f.service.Verify(ctx, walker.ID, event.ID, near)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeAlreadyVerifier))

	_, err = f.service.Verify(ctx, walker.ID, 9999, near)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

func TestVerifyQuorum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	event := f.createEvent(ctx, t, host.ID, "Open air cinema")

	for i, name := range []string{"a", "b", "c", "d"} {
		user := f.createUser(ctx, t, name)
		result, err := f.service.Verify(ctx, user.ID, event.ID, near)
		require.NoError(t, err)
		if i < DefaultVerifyQuorum-1 {
			assert.Equal(t, store.EventDraft, result.Event.Status, "after %d verifiers", i+1)
		} else {
			assert.Equal(t, store.EventVerified, result.Event.Status, "after %d verifiers", i+1)
		}
	}
	assert.Equal(t, 1, f.emitted(pubsub.EventVerified))

	view, err := f.service.GetEvent(ctx, event.ID, populate.Fields("verifiers"))
	require.NoError(t, err)
	assert.Equal(t, store.EventVerified, view.Status)
	require.Len(t, view.Verifiers, 4)
	assert.NotNil(t, view.Verifiers[0].User)
}

// slowVerifiers widens the window between the verifier insert and the quorum count.
type slowVerifiers struct {
	*store.Store
}

func (s slowVerifiers) CreateEventVerifier(ctx context.Context, create *store.EventVerifier) (*store.EventVerifier, error) {
	time.Sleep(20 * time.Millisecond)
	return s.Store.CreateEventVerifier(ctx, create)
}

func TestVerifyConcurrentReachesQuorum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	svc := NewService(slowVerifiers{f.store}, f.bus(), Config{})
	host := f.createUser(ctx, t, "host")
	event := f.createEvent(ctx, t, host.ID, "Night market")

	users := make([]*store.User, 5)
	for i := range users {
		users[i] = f.createUser(ctx, t, fmt.Sprintf("visitor%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Verify(ctx, user.ID, event.ID, near)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := f.store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EventVerified, got.Status)
	count, err := f.store.CountEventVerifiers(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, len(users), count)
	assert.Equal(t, 1, f.emitted(pubsub.EventVerified))
}

func TestVerifyCancelledEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	event := f.createEvent(ctx, t, host.ID, "Rained out")

	cancelled := store.EventCancelled
	_, err := f.service.UpdateEvent(ctx, host.ID, event.ID, &UpdateEventRequest{Status: &cancelled})
	require.NoError(t, err)

	_, err = f.service.Verify(ctx, host.ID, event.ID, venue)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))
	_, err = f.service.Join(ctx, host.ID, event.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))
}

// brokenReactions fails every reaction lookup.
type brokenReactions struct {
	*store.Store
}

func (brokenReactions) ListReactionsFor(context.Context, store.ReactionContentType, int32) ([]*store.Reaction, error) {
	return nil, errors.New("reaction table unavailable")
}

func TestPopulateIsolatesFailingResolver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	event := f.createEvent(ctx, t, host.ID, "Jam session", "music")

	svc := NewService(brokenReactions{f.store}, nil, Config{})
	view, err := svc.GetEvent(ctx, event.ID, populate.AllFields)
	require.NoError(t, err)
	assert.Equal(t, []*store.Reaction{}, view.Reactions)
	require.NotNil(t, view.Creator)
	assert.Len(t, view.Tags, 1)
	assert.Len(t, view.Participants, 1)
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	host := f.createUser(ctx, t, "host")
	other := f.createUser(ctx, t, "other")

	for i, title := range []string{"Late show", "Early bird", "Lunch talk"} {
		_, err := f.service.CreateEvent(ctx, host.ID, &CreateEventRequest{
			Title:     title,
			Latitude:  venue.Latitude,
			Longitude: venue.Longitude,
			StartTs:   int64(3000 - i*1000),
		})
		require.NoError(t, err)
	}
	f.createEvent(ctx, t, other.ID, "Other's event")

	page, err := f.service.ListEvents(ctx, &ListEventsRequest{
		CreatorID: &host.ID,
		Cursor:    pagination.Cursor{SortBy: "startTs", SortOrder: "asc", Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Lunch talk", page.Items[0].Title)
	assert.Equal(t, "Early bird", page.Items[1].Title)
	require.NotEmpty(t, page.Pagination.Next)

	next, err := f.service.ListEvents(ctx, &ListEventsRequest{
		CreatorID: &host.ID,
		Cursor:    pagination.Cursor{SortBy: "startTs", SortOrder: "asc", Limit: 2, Next: page.Pagination.Next},
		Populate:  populate.Fields("creator"),
	})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "Late show", next.Items[0].Title)
	assert.Equal(t, "host", next.Items[0].Creator.Username)

	search, err := f.service.ListEvents(ctx, &ListEventsRequest{Search: "BIRD"})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)

	_, err = f.service.ListEvents(ctx, &ListEventsRequest{Cursor: pagination.Cursor{SortBy: "title"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}
