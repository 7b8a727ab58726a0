package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID       int32  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type testTag struct {
	Name string `json:"name"`
}

func newTestUserCache(t *testing.T) (*EntityCache[testUser], *Index[testUser], *Index[testUser]) {
	t.Helper()
	c := New(newTestMemoryStore(t), Config{DefaultTTL: time.Minute})
	users := NewEntityCache[testUser](c.Namespace("users", 0))
	byEmail := users.AddIndex("email", func(u *testUser) string { return u.Email })
	byUsername := users.AddIndex("username", func(u *testUser) string { return u.Username })
	return users, byEmail, byUsername
}

func TestEntityCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	users, byEmail, byUsername := newTestUserCache(t)

	users.SetByID(ctx, 1, &testUser{ID: 1, Email: "a@plaza.dev", Username: "alice"}, 0)

	got, ok := users.GetByID(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	id, ok := byEmail.GetID(ctx, "a@plaza.dev")
	require.True(t, ok)
	assert.Equal(t, int32(1), id)

	got, ok = byUsername.Get(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, "a@plaza.dev", got.Email)

	// The index stores only the id.
	raw, found, err := users.Keyed().Get(ctx, "email:a@plaza.dev")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(raw))
}

func TestEntityCache_InvalidateRemovesPreviousIndexKeys(t *testing.T) {
	ctx := context.Background()
	users, byEmail, _ := newTestUserCache(t)

	old := &testUser{ID: 1, Email: "old@plaza.dev", Username: "alice"}
	users.SetByID(ctx, 1, old, 0)

	// Email changed in the record store; invalidate using the previous value.
	users.Invalidate(ctx, 1, old)

	_, ok := users.GetByID(ctx, 1)
	assert.False(t, ok)
	_, ok = byEmail.GetID(ctx, "old@plaza.dev")
	assert.False(t, ok, "stale secondary index must be removed")

	users.SetByID(ctx, 1, &testUser{ID: 1, Email: "new@plaza.dev", Username: "alice"}, 0)
	got, ok := byEmail.Get(ctx, "new@plaza.dev")
	require.True(t, ok)
	assert.Equal(t, "new@plaza.dev", got.Email)
}

func TestEntityCache_InvalidateWithoutPreviousUsesCachedValue(t *testing.T) {
	ctx := context.Background()
	users, byEmail, _ := newTestUserCache(t)

	users.SetByID(ctx, 3, &testUser{ID: 3, Email: "c@plaza.dev", Username: "carol"}, 0)
	users.Invalidate(ctx, 3, nil)

	_, ok := byEmail.GetID(ctx, "c@plaza.dev")
	assert.False(t, ok)
}

func TestEntityCache_IndexOutlivingPrimaryIsAMiss(t *testing.T) {
	ctx := context.Background()
	users, byEmail, _ := newTestUserCache(t)

	byEmail.Set(ctx, "ghost@plaza.dev", 9)
	_, ok := byEmail.Get(ctx, "ghost@plaza.dev")
	assert.False(t, ok)
	_, ok = users.GetByID(ctx, 9)
	assert.False(t, ok)
}

func TestEntityCache_DeleteByIDClearsComposites(t *testing.T) {
	ctx := context.Background()
	c := New(newTestMemoryStore(t), Config{})
	events := NewEntityCache[testUser](c.Namespace("events", 0))
	tags := NewComposite[[]testTag](events, "tags")

	events.SetByID(ctx, 1, &testUser{ID: 1}, 0)
	events.SetByID(ctx, 12, &testUser{ID: 12}, 0)
	tags.Set(ctx, 1, []testTag{{Name: "music"}})
	tags.Set(ctx, 12, []testTag{{Name: "food"}})

	events.DeleteByID(ctx, 1)

	_, ok := tags.Get(ctx, 1)
	assert.False(t, ok)
	_, ok = events.GetByID(ctx, 1)
	assert.False(t, ok)

	got, ok := tags.Get(ctx, 12)
	require.True(t, ok, "deleting id 1 must not touch id 12")
	assert.Equal(t, []testTag{{Name: "food"}}, got)
}

func TestEntityCache_GetMany(t *testing.T) {
	ctx := context.Background()
	users, _, _ := newTestUserCache(t)

	users.SetMany(ctx, map[int32]*testUser{
		1: {ID: 1, Username: "alice"},
		2: {ID: 2, Username: "bob"},
	}, 0)

	found, missing := users.GetMany(ctx, []int32{1, 2, 3})
	assert.Len(t, found, 2)
	assert.Equal(t, "bob", found[2].Username)
	assert.Equal(t, []int32{3}, missing)
}

func TestEntityCache_StoreFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: newTestMemoryStore(t)}
	users := NewEntityCache[testUser](New(inner, Config{}).Namespace("users", 0))

	users.SetByID(ctx, 1, &testUser{ID: 1}, 0)
	inner.down.Store(true)

	_, ok := users.GetByID(ctx, 1)
	assert.False(t, ok)
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	users, byEmail, _ := newTestUserCache(t)

	loads := 0
	load := func(context.Context) (*testUser, error) {
		loads++
		return &testUser{ID: 5, Email: "e@plaza.dev", Username: "erin"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := ReadThrough(ctx, users, 5, load)
		require.NoError(t, err)
		assert.Equal(t, "erin", got.Username)
	}
	assert.Equal(t, 1, loads)

	got, err := ReadThroughIndex(ctx, byEmail, "e@plaza.dev", func(u *testUser) int32 { return u.ID }, load)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got.ID)
	assert.Equal(t, 1, loads, "SetByID wrote the email index")
}

func TestReadThrough_ErrorsAndNotFoundAreNotCached(t *testing.T) {
	ctx := context.Background()
	users, _, _ := newTestUserCache(t)

	_, err := ReadThrough(ctx, users, 8, func(context.Context) (*testUser, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)

	got, err := ReadThrough(ctx, users, 8, func(context.Context) (*testUser, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok := users.GetByID(ctx, 8)
	assert.False(t, ok)
}

func TestLoadComposite(t *testing.T) {
	ctx := context.Background()
	c := New(newTestMemoryStore(t), Config{})
	events := NewEntityCache[testUser](c.Namespace("events", 0))
	tags := NewComposite[[]testTag](events, "tags")

	calls := 0
	load := func(context.Context) ([]testTag, error) {
		calls++
		return []testTag{{Name: "art"}}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := Load(ctx, tags, 4, load)
		require.NoError(t, err)
		assert.Equal(t, []testTag{{Name: "art"}}, got)
	}
	assert.Equal(t, 1, calls)

	tags.Invalidate(ctx, 4)
	_, err := Load(ctx, tags, 4, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
