package thread

import (
	"context"
	"strings"

	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

const maxReactionLength = 32

func (s *service) React(ctx context.Context, userID int32, react *ReactRequest) (*store.Reaction, error) {
	if !react.ContentType.Valid() {
		return nil, apierrors.BadRequest("Unsupported reaction content type")
	}
	reactionType := strings.TrimSpace(react.ReactionType)
	if reactionType == "" || len(reactionType) > maxReactionLength {
		return nil, apierrors.BadRequest("Invalid reaction type")
	}
	if err := s.ensureReactable(ctx, react.ContentType, react.ContentID); err != nil {
		return nil, err
	}

	reaction, err := s.store.UpsertReaction(ctx, &store.Reaction{
		CreatorID:    userID,
		ContentType:  react.ContentType,
		ContentID:    react.ContentID,
		ReactionType: reactionType,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.ReactionCreated, reaction)
	return reaction, nil
}

// ensureReactable checks the content exists and, for threads and messages,
// that the thread is not chain-locked.
func (s *service) ensureReactable(ctx context.Context, contentType store.ReactionContentType, contentID int32) error {
	var threadID int32
	switch contentType {
	case store.ReactionOnEvent:
		event, err := s.store.GetEvent(ctx, contentID)
		if err != nil {
			return err
		}
		if event == nil {
			return apierrors.NotFound("event", contentID)
		}
		return nil
	case store.ReactionOnMessage:
		message, err := s.store.GetMessage(ctx, contentID)
		if err != nil {
			return err
		}
		if message == nil {
			return apierrors.NotFound("message", contentID)
		}
		threadID = message.ThreadID
	default:
		threadID = contentID
	}

	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil {
		return apierrors.NotFound("thread", threadID)
	}
	return s.ensureWritable(ctx, thread)
}

func (s *service) Unreact(ctx context.Context, userID, reactionID int32) error {
	reaction, err := s.store.GetReaction(ctx, reactionID)
	if err != nil {
		return err
	}
	if reaction == nil {
		return apierrors.NotFound("reaction", reactionID)
	}
	if reaction.CreatorID != userID {
		return apierrors.Forbidden("Only the author can remove this reaction")
	}
	if err := s.store.DeleteReaction(ctx, &store.DeleteReaction{ID: reactionID}); err != nil {
		return err
	}
	s.emit(ctx, pubsub.ReactionDeleted, reaction)
	return nil
}
