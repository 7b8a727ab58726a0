package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/store/cache"
)

// ReactionContentType is the kind of content a reaction points at.
type ReactionContentType string

const (
	ReactionOnEvent   ReactionContentType = "event"
	ReactionOnThread  ReactionContentType = "thread"
	ReactionOnMessage ReactionContentType = "message"
)

func (t ReactionContentType) Valid() bool {
	switch t {
	case ReactionOnEvent, ReactionOnThread, ReactionOnMessage:
		return true
	}
	return false
}

type Reaction struct {
	ID        int32 `json:"id"`
	CreatedTs int64 `json:"createdTs"`
	CreatorID int32 `json:"creatorId"`

	ContentType  ReactionContentType `json:"contentType"`
	ContentID    int32               `json:"contentId"`
	ReactionType string              `json:"reactionType"`
}

type FindReaction struct {
	ID            *int32
	CreatorID     *int32
	ContentType   *ReactionContentType
	ContentID     *int32
	ContentIDList []int32
}

type DeleteReaction struct {
	ID int32
}

// reactionComposite returns the composite caching reactions of the content, if any.
// Message reactions are not cached.
func (s *Store) reactionComposite(contentType ReactionContentType) *cache.Composite[[]*Reaction] {
	switch contentType {
	case ReactionOnEvent:
		return s.eventReactions
	case ReactionOnThread:
		return s.threadReactions
	}
	return nil
}

// UpsertReaction inserts the reaction (or returns the existing identical one),
// then drops the reactions composite of its content.
func (s *Store) UpsertReaction(ctx context.Context, upsert *Reaction) (*Reaction, error) {
	if !upsert.ContentType.Valid() {
		return nil, errors.Errorf("invalid reaction content type %q", upsert.ContentType)
	}
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = time.Now().Unix()
	}
	reaction, err := s.driver.UpsertReaction(ctx, upsert)
	if err != nil {
		return nil, err
	}
	if composite := s.reactionComposite(reaction.ContentType); composite != nil {
		composite.Invalidate(ctx, reaction.ContentID)
	}
	s.reactionCache.SetByID(ctx, reaction.ID, reaction, 0)
	return reaction, nil
}

func (s *Store) ListReactions(ctx context.Context, find *FindReaction) ([]*Reaction, error) {
	return s.driver.ListReactions(ctx, find)
}

// ListReactionsFor returns the reactions on one piece of content, through the
// content's reactions composite where one exists.
func (s *Store) ListReactionsFor(ctx context.Context, contentType ReactionContentType, contentID int32) ([]*Reaction, error) {
	load := func(ctx context.Context) ([]*Reaction, error) {
		return s.ListReactions(ctx, &FindReaction{ContentType: &contentType, ContentID: &contentID})
	}
	composite := s.reactionComposite(contentType)
	if composite == nil {
		return load(ctx)
	}
	return cache.Load(ctx, composite, contentID, load)
}

func (s *Store) GetReaction(ctx context.Context, id int32) (*Reaction, error) {
	return cache.ReadThrough(ctx, s.reactionCache, id, func(ctx context.Context) (*Reaction, error) {
		list, err := s.ListReactions(ctx, &FindReaction{ID: &id})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	})
}

// DeleteReaction removes the reaction, then drops it and its content's reactions composite.
func (s *Store) DeleteReaction(ctx context.Context, delete *DeleteReaction) error {
	previous, err := s.GetReaction(ctx, delete.ID)
	if err != nil {
		return err
	}
	if err := s.driver.DeleteReaction(ctx, delete); err != nil {
		return err
	}
	s.reactionCache.Invalidate(ctx, delete.ID, previous)
	if previous != nil {
		if composite := s.reactionComposite(previous.ContentType); composite != nil {
			composite.Invalidate(ctx, previous.ContentID)
		}
	}
	return nil
}
