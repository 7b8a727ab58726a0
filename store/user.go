package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/store/cache"
)

type User struct {
	ID int32 `json:"id"`

	// Standard fields
	RowStatus RowStatus `json:"rowStatus"`
	CreatedTs int64     `json:"createdTs"`
	UpdatedTs int64     `json:"updatedTs"`

	// Domain specific fields
	Username  string `json:"username"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	Bio       string `json:"bio"`
}

type FindUser struct {
	ID       *int32
	IDList   []int32
	Username *string
	Email    *string
	// Search matches username, nickname or bio, case-insensitively.
	Search          *string
	IncludeArchived bool

	Limit  *int
	Offset *int
}

type UpdateUser struct {
	ID        int32
	UpdatedTs *int64
	RowStatus *RowStatus
	Username  *string
	Email     *string
	Nickname  *string
	AvatarURL *string
	Bio       *string
}

type DeleteUser struct {
	ID int32
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	create.Email = normalizeEmail(create.Email)
	if create.RowStatus == "" {
		create.RowStatus = Normal
	}
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	user, err := s.driver.CreateUser(ctx, create)
	if err != nil {
		return nil, err
	}
	s.userCache.SetByID(ctx, user.ID, user, 0)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

func (s *Store) CountUsers(ctx context.Context, find *FindUser) (int64, error) {
	return s.driver.CountUsers(ctx, find)
}

// GetUser returns the user matching find, or nil when none exists.
// Lookups by id, email or username read through the cache.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	load := func(ctx context.Context) (*User, error) {
		list, err := s.ListUsers(ctx, find)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}
	if find.IncludeArchived {
		return load(ctx)
	}

	userID := func(u *User) int32 { return u.ID }
	switch {
	case find.ID != nil && find.Email == nil && find.Username == nil:
		return cache.ReadThrough(ctx, s.userCache, *find.ID, load)
	case find.Email != nil && find.ID == nil:
		email := normalizeEmail(*find.Email)
		find.Email = &email
		return cache.ReadThroughIndex(ctx, s.userByEmail, email, userID, load)
	case find.Username != nil && find.ID == nil:
		return cache.ReadThroughIndex(ctx, s.userByUsername, *find.Username, userID, load)
	default:
		return load(ctx)
	}
}

// GetUsersByIDs hydrates users from the cache in one round trip and loads the rest in one query.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []int32) (map[int32]*User, error) {
	found, missing := s.userCache.GetMany(ctx, ids)
	if len(missing) == 0 {
		return found, nil
	}
	list, err := s.ListUsers(ctx, &FindUser{IDList: missing})
	if err != nil {
		return nil, err
	}
	loaded := make(map[int32]*User, len(list))
	for _, user := range list {
		found[user.ID] = user
		loaded[user.ID] = user
	}
	s.userCache.SetMany(ctx, loaded, 0)
	return found, nil
}

// UpdateUser updates the record, then drops the cached user together with the
// email and username index keys of the previous value.
func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	previous, err := s.GetUser(ctx, &FindUser{ID: &update.ID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, errors.Wrapf(ErrNotFound, "user %d", update.ID)
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		update.Email = &email
	}
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}

	user, err := s.driver.UpdateUser(ctx, update)
	if err != nil {
		return nil, err
	}
	s.userCache.Invalidate(ctx, update.ID, previous)
	return user, nil
}

// DeleteUser archives the user and revokes every session.
func (s *Store) DeleteUser(ctx context.Context, delete *DeleteUser) error {
	previous, err := s.GetUser(ctx, &FindUser{ID: &delete.ID, IncludeArchived: true})
	if err != nil {
		return err
	}
	if err := s.driver.DeleteUser(ctx, delete); err != nil {
		return err
	}
	s.userCache.Invalidate(ctx, delete.ID, previous)
	if err := s.sessionCache.Delete(ctx, idKey(delete.ID)); err != nil {
		s.warnCache("sessions", err)
	}
	return nil
}
