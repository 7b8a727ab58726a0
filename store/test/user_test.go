package test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/store"
)

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	user, err := ts.CreateUser(ctx, &store.User{
		Username: "ada",
		Email:    "  Ada@Example.com ",
		Nickname: "Ada",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, store.Normal, user.RowStatus)

	byID, err := ts.GetUser(ctx, &store.FindUser{ID: &user.ID})
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ada", byID.Username)

	email := "ADA@example.com"
	byEmail, err := ts.GetUser(ctx, &store.FindUser{Email: &email})
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	missing := "nobody"
	none, err := ts.GetUser(ctx, &store.FindUser{Username: &missing})
	require.NoError(t, err)
	assert.Nil(t, none)

	count, err := ts.CountUsers(ctx, &store.FindUser{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserStoreDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateUser(ctx, &store.User{Username: "grace"})
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, &store.User{Username: "grace"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestUserStoreUpdateInvalidatesIndexes(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	user, err := ts.CreateUser(ctx, &store.User{Username: "linus", Email: "linus@example.com"})
	require.NoError(t, err)

	// Warm the username index.
	oldName := "linus"
	cached, err := ts.GetUser(ctx, &store.FindUser{Username: &oldName})
	require.NoError(t, err)
	require.NotNil(t, cached)

	newName := "torvalds"
	updated, err := ts.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, Username: &newName})
	require.NoError(t, err)
	assert.Equal(t, "torvalds", updated.Username)

	stale, err := ts.GetUser(ctx, &store.FindUser{Username: &oldName})
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := ts.GetUser(ctx, &store.FindUser{Username: &newName})
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, user.ID, fresh.ID)

	byID, err := ts.GetUser(ctx, &store.FindUser{ID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, "torvalds", byID.Username)
}

func TestUserStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	name := "ghost"
	_, err := ts.UpdateUser(ctx, &store.UpdateUser{ID: 404, Username: &name})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUserStoreDeleteRevokesSessions(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	user, err := ts.CreateUser(ctx, &store.User{Username: "margaret"})
	require.NoError(t, err)
	require.NoError(t, ts.AddUserSession(ctx, user.ID, "s1", time.Hour))

	ok, err := ts.HasUserSession(ctx, user.ID, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ts.DeleteUser(ctx, &store.DeleteUser{ID: user.ID}))

	deleted, err := ts.GetUser(ctx, &store.FindUser{ID: &user.ID})
	require.NoError(t, err)
	assert.Nil(t, deleted)

	archived, err := ts.GetUser(ctx, &store.FindUser{ID: &user.ID, IncludeArchived: true})
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.Equal(t, store.Archived, archived.RowStatus)

	ok, err = ts.HasUserSession(ctx, user.ID, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUsersByIDs(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	var ids []int32
	for _, name := range []string{"u1", "u2", "u3"} {
		user, err := ts.CreateUser(ctx, &store.User{Username: name})
		require.NoError(t, err)
		ids = append(ids, user.ID)
	}
	// Drop one entry so the batch mixes cache hits with a record-store load.
	require.NoError(t, ts.Cache().Store().Delete(ctx, "users:"+itoa(ids[1])))

	users, err := ts.GetUsersByIDs(ctx, append(ids, 999))
	require.NoError(t, err)
	assert.Len(t, users, 3)
	assert.Equal(t, "u2", users[ids[1]].Username)
	assert.NotContains(t, users, int32(999))
}
