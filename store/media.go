package store

import (
	"context"
	"time"

	"github.com/hrygo/plaza/store/cache"
)

// Media is a file attached to an event. Only its URL is stored; upload happens elsewhere.
type Media struct {
	ID        int32  `json:"id"`
	EventID   int32  `json:"eventId"`
	CreatorID int32  `json:"creatorId"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	CreatedTs int64  `json:"createdTs"`
}

type FindMedia struct {
	ID      *int32
	EventID *int32

	Limit  *int
	Offset *int
}

type DeleteMedia struct {
	ID int32
}

// CreateMedia inserts the row, then drops the event's media composite.
func (s *Store) CreateMedia(ctx context.Context, create *Media) (*Media, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	media, err := s.driver.CreateMedia(ctx, create)
	if err != nil {
		return nil, err
	}
	s.eventMedia.Invalidate(ctx, media.EventID)
	s.mediaCache.SetByID(ctx, media.ID, media, 0)
	return media, nil
}

func (s *Store) ListMedia(ctx context.Context, find *FindMedia) ([]*Media, error) {
	return s.driver.ListMedia(ctx, find)
}

func (s *Store) GetMedia(ctx context.Context, id int32) (*Media, error) {
	return cache.ReadThrough(ctx, s.mediaCache, id, func(ctx context.Context) (*Media, error) {
		list, err := s.ListMedia(ctx, &FindMedia{ID: &id})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	})
}

// DeleteMedia removes the row, then drops the media entry and its event's media composite.
func (s *Store) DeleteMedia(ctx context.Context, delete *DeleteMedia) error {
	previous, err := s.GetMedia(ctx, delete.ID)
	if err != nil {
		return err
	}
	if err := s.driver.DeleteMedia(ctx, delete); err != nil {
		return err
	}
	s.mediaCache.Invalidate(ctx, delete.ID, previous)
	if previous != nil {
		s.eventMedia.Invalidate(ctx, previous.EventID)
	}
	return nil
}
