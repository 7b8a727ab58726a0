package event

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

const maxTagLength = 64

func validTagName(name string) bool {
	return name != "" && len(name) <= maxTagLength
}

func (s *service) AddTag(ctx context.Context, userID, eventID int32, name string) (*store.Tag, error) {
	if _, err := s.getOwnedEvent(ctx, userID, eventID); err != nil {
		return nil, err
	}
	tag, err := s.addTag(ctx, eventID, name)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.EventUpdated, map[string]int32{"id": eventID})
	return tag, nil
}

func (s *service) addTag(ctx context.Context, eventID int32, name string) (*store.Tag, error) {
	name = store.NormalizeTagName(name)
	if !validTagName(name) {
		return nil, apierrors.BadRequest("Invalid tag name")
	}
	tag, err := s.store.EnsureTag(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddEventTag(ctx, eventID, tag.ID); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *service) RemoveTag(ctx context.Context, userID, eventID, tagID int32) error {
	if _, err := s.getOwnedEvent(ctx, userID, eventID); err != nil {
		return err
	}
	if err := s.store.RemoveEventTag(ctx, eventID, tagID); err != nil {
		return err
	}
	s.emit(ctx, pubsub.EventUpdated, map[string]int32{"id": eventID})
	return nil
}

func (s *service) AddMedia(ctx context.Context, userID, eventID int32, create *AddMediaRequest) (*store.Media, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimSpace(create.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apierrors.BadRequest("Media URL must be an absolute http(s) URL")
	}
	mediaType := strings.TrimSpace(create.Type)
	if mediaType == "" {
		mediaType = "image"
	}

	media, err := s.store.CreateMedia(ctx, &store.Media{
		EventID:   eventID,
		CreatorID: userID,
		URL:       u.String(),
		Type:      mediaType,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.EventUpdated, map[string]int32{"id": eventID})
	return media, nil
}

// RemoveMedia is allowed to the media uploader and the event creator.
func (s *service) RemoveMedia(ctx context.Context, userID, eventID, mediaID int32) error {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	media, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return err
	}
	if media == nil || media.EventID != eventID {
		return apierrors.NotFound("media", mediaID)
	}
	if media.CreatorID != userID && event.CreatorID != userID {
		return apierrors.Forbidden("Only the uploader or the event creator can remove this media")
	}
	if err := s.store.DeleteMedia(ctx, &store.DeleteMedia{ID: mediaID}); err != nil {
		return err
	}
	s.emit(ctx, pubsub.EventUpdated, map[string]int32{"id": eventID})
	return nil
}

func (s *service) Join(ctx context.Context, userID, eventID int32) (*store.EventParticipant, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == store.EventCancelled {
		return nil, apierrors.BadRequest("Cannot join a cancelled event")
	}
	role := store.RoleGuest
	if event.CreatorID == userID {
		role = store.RoleHost
	}
	participant, err := s.store.UpsertEventParticipant(ctx, &store.EventParticipant{EventID: eventID, UserID: userID, Role: role})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.ParticipantJoined, participant)
	return participant, nil
}

func (s *service) Leave(ctx context.Context, userID, eventID int32) error {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.CreatorID == userID {
		return apierrors.BadRequest("The host cannot leave their own event")
	}
	err = s.store.DeleteEventParticipant(ctx, &store.DeleteEventParticipant{EventID: eventID, UserID: userID})
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFound("participant", userID)
	}
	if err != nil {
		return err
	}
	s.emit(ctx, pubsub.ParticipantLeft, map[string]int32{"eventId": eventID, "userId": userID})
	return nil
}
