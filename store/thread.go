package store

import (
	"context"
	"time"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/store/cache"
)

// LockEntry is one lock event in a thread's lock history.
type LockEntry struct {
	LockedBy *int32 `json:"lockedBy"`
	LockedAt *int64 `json:"lockedAt"`
}

type Thread struct {
	ID int32 `json:"id"`

	// Standard fields
	RowStatus RowStatus `json:"rowStatus"`
	CreatorID int32     `json:"creatorId"`
	CreatedTs int64     `json:"createdTs"`
	UpdatedTs int64     `json:"updatedTs"`

	// Domain specific fields
	EventID     *int32      `json:"eventId"`
	ParentID    *int32      `json:"parentId"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	LockHistory []LockEntry `json:"lockHistory"`
}

type FindThread struct {
	ID        *int32
	IDList    []int32
	EventID   *int32
	ParentID  *int32
	CreatorID *int32
	// TopLevel restricts to threads without a parent.
	TopLevel        bool
	IncludeArchived bool
	// ForUpdate locks the selected rows until the surrounding transaction ends,
	// on drivers that support row locks.
	ForUpdate bool

	Window *pagination.Window
	Limit  *int
	Offset *int
}

type UpdateThread struct {
	ID          int32
	UpdatedTs   *int64
	RowStatus   *RowStatus
	Title       *string
	Content     *string
	LockHistory *[]LockEntry
}

type DeleteThread struct {
	ID int32
}

func (s *Store) CreateThread(ctx context.Context, create *Thread) (*Thread, error) {
	if create.RowStatus == "" {
		create.RowStatus = Normal
	}
	if create.LockHistory == nil {
		create.LockHistory = []LockEntry{}
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	thread, err := s.driver.CreateThread(ctx, create)
	if err != nil {
		return nil, err
	}
	s.threadCache.SetByID(ctx, thread.ID, thread, 0)
	return thread, nil
}

func (s *Store) ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error) {
	return s.driver.ListThreads(ctx, find)
}

// GetThread reads the thread through the cache. It returns nil when the thread does not exist.
func (s *Store) GetThread(ctx context.Context, id int32) (*Thread, error) {
	return cache.ReadThrough(ctx, s.threadCache, id, func(ctx context.Context) (*Thread, error) {
		return s.getThreadFromDB(ctx, id)
	})
}

// GetThreadForUpdate bypasses the cache and locks the row; use it inside WithTx.
func (s *Store) GetThreadForUpdate(ctx context.Context, id int32) (*Thread, error) {
	list, err := s.ListThreads(ctx, &FindThread{ID: &id, IncludeArchived: true, ForUpdate: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) getThreadFromDB(ctx context.Context, id int32) (*Thread, error) {
	list, err := s.ListThreads(ctx, &FindThread{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateThread updates the record, then drops the cached thread and its composites.
func (s *Store) UpdateThread(ctx context.Context, update *UpdateThread) (*Thread, error) {
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	thread, err := s.driver.UpdateThread(ctx, update)
	if err != nil {
		return nil, err
	}
	s.InvalidateThread(ctx, update.ID)
	return thread, nil
}

// DeleteThread archives the thread.
func (s *Store) DeleteThread(ctx context.Context, delete *DeleteThread) error {
	if err := s.driver.DeleteThread(ctx, delete); err != nil {
		return err
	}
	s.InvalidateThread(ctx, delete.ID)
	return nil
}

// InvalidateThread drops the cached thread and every composite derived from it.
func (s *Store) InvalidateThread(ctx context.Context, id int32) {
	s.threadCache.Invalidate(ctx, id, nil)
}
