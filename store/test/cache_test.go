package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/store"
)

func TestStoreWithRedisCache(t *testing.T) {
	ctx := context.Background()
	ts, server := NewTestingStoreWithRedis(ctx, t)

	event := createTestEvent(ctx, t, ts, 1, "Rooftop cinema")
	assert.True(t, server.Exists("plaza:events:"+itoa(event.ID)))

	tags, err := ts.ListEventTags(ctx, event.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.True(t, server.Exists("plaza:events:"+itoa(event.ID)+":tags"))

	title := "Rooftop cinema (rain date)"
	_, err = ts.UpdateEvent(ctx, &store.UpdateEvent{ID: event.ID, Title: &title})
	require.NoError(t, err)
	assert.False(t, server.Exists("plaza:events:"+itoa(event.ID)))
	assert.False(t, server.Exists("plaza:events:"+itoa(event.ID)+":tags"))
}

func TestStoreFailsOpenWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	ts, server := NewTestingStoreWithRedis(ctx, t)

	user, err := ts.CreateUser(ctx, &store.User{Username: "offline"})
	require.NoError(t, err)

	server.Close()

	got, err := ts.GetUser(ctx, &store.FindUser{ID: &user.ID})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "offline", got.Username)

	name := "still-writable"
	updated, err := ts.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, Username: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Username)
}
