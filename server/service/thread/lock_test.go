package thread

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
	storetest "github.com/hrygo/plaza/store/test"
)

type fixture struct {
	store   *store.Store
	service Service
	bus     *pubsub.Bus

	mu       sync.Mutex
	messages []*pubsub.Message
}

func newFixture(ctx context.Context, t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: storetest.NewTestingStore(ctx, t),
		bus:   pubsub.NewBus(),
	}
	f.bus.Subscribe(pubsub.Wildcard, func(_ context.Context, msg *pubsub.Message) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.messages = append(f.messages, msg)
	})
	f.service = NewService(f.store, f.bus, populate.Config{}, opts...)
	return f
}

func (f *fixture) emitted(event string) []*pubsub.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pubsub.Message
	for _, msg := range f.messages {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fixture) createUser(ctx context.Context, t *testing.T, username string) *store.User {
	t.Helper()
	user, err := f.store.CreateUser(ctx, &store.User{Username: username, Email: username + "@example.com", Nickname: username})
	require.NoError(t, err)
	return user
}

func (f *fixture) createThread(ctx context.Context, t *testing.T, creatorID int32, title string, parentID *int32) *store.Thread {
	t.Helper()
	thread, err := f.service.CreateThread(ctx, creatorID, &CreateThreadRequest{Title: title, ParentID: parentID})
	require.NoError(t, err)
	return thread
}

func TestLockStateMachine(t *testing.T) {
	ctx := context.Background()
	fixed := time.Unix(1700000000, 0)
	f := newFixture(ctx, t, WithClock(func() time.Time { return fixed }))
	author := f.createUser(ctx, t, "ada")
	thread := f.createThread(ctx, t, author.ID, "Parking", nil)

	locked, err := f.service.Lock(ctx, thread.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, IsLocked(locked))
	require.Len(t, locked.LockHistory, 1)
	assert.Equal(t, author.ID, *locked.LockHistory[0].LockedBy)
	assert.Equal(t, fixed.Unix(), *locked.LockHistory[0].LockedAt)

	_, err = f.service.Lock(ctx, thread.ID, author.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeAlreadyLocked))

	unlocked, err := f.service.Unlock(ctx, thread.ID, author.ID)
	require.NoError(t, err)
	assert.False(t, IsLocked(unlocked))
	// Unlocking clears the history instead of recording the unlock.
	assert.Empty(t, unlocked.LockHistory)

	_, err = f.service.Unlock(ctx, thread.ID, author.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeAlreadyUnlocked))

	got, err := f.service.GetThread(ctx, thread.ID, populate.None)
	require.NoError(t, err)
	assert.False(t, got.Locked)
}

func TestLockReadsAfterWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	thread := f.createThread(ctx, t, author.ID, "Parking", nil)

	// Warm the cache with the unlocked thread.
	before, err := f.service.GetThread(ctx, thread.ID, populate.None)
	require.NoError(t, err)
	require.False(t, before.Locked)

	_, err = f.service.Lock(ctx, thread.ID, author.ID)
	require.NoError(t, err)

	after, err := f.service.GetThread(ctx, thread.ID, populate.None)
	require.NoError(t, err)
	assert.True(t, after.Locked)
}

func TestLockGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	other := f.createUser(ctx, t, "grace")
	thread := f.createThread(ctx, t, author.ID, "Parking", nil)

	_, err := f.service.Lock(ctx, thread.ID, other.ID)
	require.Error(t, err)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))
	coded, _ := apierrors.As(err)
	assert.Equal(t, "Only the thread author can lock or unlock this thread", coded.Message)

	_, err = f.service.Lock(ctx, 9999, author.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))

	got, err := f.store.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.False(t, IsLocked(got))
}

func TestLockEmitsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	thread := f.createThread(ctx, t, author.ID, "Parking", nil)

	_, err := f.service.Lock(ctx, thread.ID, author.ID)
	require.NoError(t, err)
	_, err = f.service.Unlock(ctx, thread.ID, author.ID)
	require.NoError(t, err)

	lockedMsgs := f.emitted(pubsub.ThreadLocked)
	require.Len(t, lockedMsgs, 1)
	var change LockChange
	require.NoError(t, lockedMsgs[0].Decode(&change))
	assert.Equal(t, thread.ID, change.ThreadID)
	assert.Len(t, change.LockHistory, 1)

	unlockedMsgs := f.emitted(pubsub.ThreadUnlocked)
	require.Len(t, unlockedMsgs, 1)
	require.NoError(t, unlockedMsgs[0].Decode(&change))
	assert.Empty(t, change.LockHistory)
}

func TestIsLocked(t *testing.T) {
	by, at := int32(1), int64(2)
	tests := []struct {
		name    string
		history []store.LockEntry
		want    bool
	}{
		{"empty", nil, false},
		{"locked", []store.LockEntry{{LockedBy: &by, LockedAt: &at}}, true},
		{"last entry incomplete", []store.LockEntry{{LockedBy: &by, LockedAt: &at}, {LockedBy: &by}}, false},
		{"earlier incomplete", []store.LockEntry{{LockedAt: &at}, {LockedBy: &by, LockedAt: &at}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLocked(&store.Thread{LockHistory: tt.history}))
		})
	}
	assert.False(t, IsLocked(nil))
}

func TestChainLockedWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	guest := f.createUser(ctx, t, "grace")
	root := f.createThread(ctx, t, author.ID, "Parking", nil)
	reply := f.createThread(ctx, t, guest.ID, "Behind the library", &root.ID)

	message, err := f.service.PostMessage(ctx, guest.ID, reply.ID, "See you there")
	require.NoError(t, err)

	_, err = f.service.Lock(ctx, root.ID, author.ID)
	require.NoError(t, err)

	locked, err := f.service.IsChainLocked(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = f.service.PostMessage(ctx, guest.ID, reply.ID, "Still there?")
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeThreadLocked))
	assert.Equal(t, 400, apierrors.HTTPStatus(apierrors.GetCodeFromError(err, apierrors.ErrCodeInternal)))

	_, err = f.service.React(ctx, guest.ID, &ReactRequest{ContentType: store.ReactionOnThread, ContentID: reply.ID, ReactionType: "👍"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeThreadLocked))

	_, err = f.service.React(ctx, guest.ID, &ReactRequest{ContentType: store.ReactionOnMessage, ContentID: message.ID, ReactionType: "👍"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeThreadLocked))

	_, err = f.service.CreateThread(ctx, guest.ID, &CreateThreadRequest{Title: "Another", ParentID: &root.ID})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeThreadLocked))

	_, err = f.service.Unlock(ctx, root.ID, author.ID)
	require.NoError(t, err)

	_, err = f.service.PostMessage(ctx, guest.ID, reply.ID, "Still there?")
	assert.NoError(t, err)
}

func TestChainLockWalksOneLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	root := f.createThread(ctx, t, author.ID, "Root", nil)
	child := f.createThread(ctx, t, author.ID, "Child", &root.ID)
	grandchild := f.createThread(ctx, t, author.ID, "Grandchild", &child.ID)

	_, err := f.service.Lock(ctx, root.ID, author.ID)
	require.NoError(t, err)

	locked, err := f.service.IsChainLocked(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = f.service.IsChainLocked(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.False(t, locked)
}

// failingUpdates is a Store whose thread writes fail.
type failingUpdates struct {
	*store.Store
}

func (failingUpdates) UpdateThread(context.Context, *store.UpdateThread) (*store.Thread, error) {
	return nil, errors.New("write failed")
}

func TestLockFailedWriteKeepsThreadUnlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")
	thread := f.createThread(ctx, t, author.ID, "Parking", nil)

	svc := NewService(failingUpdates{f.store}, f.bus, populate.Config{})
	_, err := svc.Lock(ctx, thread.ID, author.ID)
	require.Error(t, err)

	got, err := f.store.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.False(t, IsLocked(got))
	assert.Empty(t, f.emitted(pubsub.ThreadLocked))
}
