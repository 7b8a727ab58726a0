package thread

import (
	"context"
	"log/slog"
	"slices"

	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

// IsLocked reports whether the last lock entry carries both locker and time.
func IsLocked(thread *store.Thread) bool {
	if thread == nil || len(thread.LockHistory) == 0 {
		return false
	}
	last := thread.LockHistory[len(thread.LockHistory)-1]
	return last.LockedBy != nil && last.LockedAt != nil
}

type lockTransition func(thread *store.Thread, userID int32, now int64) ([]store.LockEntry, error)

func lockThread(thread *store.Thread, userID int32, now int64) ([]store.LockEntry, error) {
	if IsLocked(thread) {
		return nil, apierrors.AlreadyLocked()
	}
	entry := store.LockEntry{LockedBy: &userID, LockedAt: &now}
	return append(slices.Clone(thread.LockHistory), entry), nil
}

// unlockThread clears the history rather than appending an unlock entry, so
// earlier locks are not kept.
func unlockThread(thread *store.Thread, _ int32, _ int64) ([]store.LockEntry, error) {
	if !IsLocked(thread) {
		return nil, apierrors.AlreadyUnlocked()
	}
	return []store.LockEntry{}, nil
}

func (s *service) Lock(ctx context.Context, threadID, userID int32) (*store.Thread, error) {
	return s.transition(ctx, threadID, userID, lockThread, pubsub.ThreadLocked)
}

func (s *service) Unlock(ctx context.Context, threadID, userID int32) (*store.Thread, error) {
	return s.transition(ctx, threadID, userID, unlockThread, pubsub.ThreadUnlocked)
}

// transition reads the thread under a row lock, applies next and writes the
// new history in one transaction. The cache is invalidated again after commit
// since reads inside the transaction may have cached the uncommitted row.
func (s *service) transition(ctx context.Context, threadID, userID int32, next lockTransition, event string) (*store.Thread, error) {
	var updated *store.Thread
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		thread, err := s.store.GetThreadForUpdate(ctx, threadID)
		if err != nil {
			return err
		}
		if thread == nil || thread.RowStatus == store.Archived {
			return apierrors.NotFound("thread", threadID)
		}
		if thread.CreatorID != userID {
			return apierrors.Forbidden("Only the thread author can lock or unlock this thread")
		}
		history, err := next(thread, userID, s.now().Unix())
		if err != nil {
			return err
		}
		updated, err = s.store.UpdateThread(ctx, &store.UpdateThread{ID: threadID, LockHistory: &history})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.store.InvalidateThread(ctx, threadID)

	s.emit(ctx, event, &LockChange{ThreadID: threadID, UserID: userID, LockHistory: updated.LockHistory})
	return updated, nil
}

func (s *service) IsChainLocked(ctx context.Context, threadID int32) (bool, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	if thread == nil {
		return false, apierrors.NotFound("thread", threadID)
	}
	return s.chainLocked(ctx, thread)
}

// chainLocked walks one parent level.
func (s *service) chainLocked(ctx context.Context, thread *store.Thread) (bool, error) {
	if IsLocked(thread) {
		return true, nil
	}
	if thread.ParentID == nil {
		return false, nil
	}
	parent, err := s.store.GetThread(ctx, *thread.ParentID)
	if err != nil {
		return false, err
	}
	return IsLocked(parent), nil
}

// ensureWritable fails with THREAD_LOCKED when the thread is chain-locked.
func (s *service) ensureWritable(ctx context.Context, thread *store.Thread) error {
	locked, err := s.chainLocked(ctx, thread)
	if err != nil {
		return err
	}
	if locked {
		return apierrors.ThreadLocked().WithContext("threadId", thread.ID)
	}
	return nil
}

func (s *service) emit(ctx context.Context, event string, payload any) {
	if err := s.publisher.Emit(ctx, event, payload); err != nil {
		slog.Warn("failed to emit", "event", event, "error", err)
	}
}
