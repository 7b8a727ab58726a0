package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/store/cache"
)

type Tag struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	CreatedTs int64  `json:"createdTs"`

	// Composed field: number of events carrying the tag.
	UsageCount int32 `json:"usageCount"`
}

type FindTag struct {
	ID      *int32
	IDList  []int32
	Name    *string
	EventID *int32
	// Search matches the name, case-insensitively.
	Search *string

	Limit  *int
	Offset *int
}

type DeleteTag struct {
	ID int32
}

// NormalizeTagName trims and lower-cases a tag name.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) CreateTag(ctx context.Context, create *Tag) (*Tag, error) {
	create.Name = NormalizeTagName(create.Name)
	if create.Name == "" {
		return nil, errors.New("tag name is empty")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	tag, err := s.driver.CreateTag(ctx, create)
	if err != nil {
		return nil, err
	}
	s.tagCache.SetByID(ctx, tag.ID, tag, 0)
	return tag, nil
}

// EnsureTag returns the tag named name, creating it when missing.
func (s *Store) EnsureTag(ctx context.Context, name string) (*Tag, error) {
	name = NormalizeTagName(name)
	tag, err := s.GetTagByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tag != nil {
		return tag, nil
	}
	return s.CreateTag(ctx, &Tag{Name: name})
}

func (s *Store) ListTags(ctx context.Context, find *FindTag) ([]*Tag, error) {
	return s.driver.ListTags(ctx, find)
}

func (s *Store) CountTags(ctx context.Context, find *FindTag) (int64, error) {
	return s.driver.CountTags(ctx, find)
}

func (s *Store) GetTag(ctx context.Context, id int32) (*Tag, error) {
	return cache.ReadThrough(ctx, s.tagCache, id, func(ctx context.Context) (*Tag, error) {
		return s.firstTag(ctx, &FindTag{ID: &id})
	})
}

// GetTagByName reads through the name index.
func (s *Store) GetTagByName(ctx context.Context, name string) (*Tag, error) {
	name = NormalizeTagName(name)
	return cache.ReadThroughIndex(ctx, s.tagByName, name, func(t *Tag) int32 { return t.ID }, func(ctx context.Context) (*Tag, error) {
		return s.firstTag(ctx, &FindTag{Name: &name})
	})
}

func (s *Store) firstTag(ctx context.Context, find *FindTag) (*Tag, error) {
	list, err := s.ListTags(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// DeleteTag removes the tag and its event links, then drops the tag and the
// tags composite of every event that carried it.
func (s *Store) DeleteTag(ctx context.Context, delete *DeleteTag) error {
	previous, err := s.firstTag(ctx, &FindTag{ID: &delete.ID})
	if err != nil {
		return err
	}
	links, err := s.driver.ListEventTags(ctx, &FindEventTag{TagID: &delete.ID})
	if err != nil {
		return err
	}
	if err := s.driver.DeleteTag(ctx, delete); err != nil {
		return err
	}
	s.tagCache.Invalidate(ctx, delete.ID, previous)
	for _, link := range links {
		s.eventTags.Invalidate(ctx, link.EventID)
	}
	return nil
}
