package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/store"
)

func TestReactionStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	event := createTestEvent(ctx, t, ts, 1, "Hackathon")
	reactions, err := ts.ListReactionsFor(ctx, store.ReactionOnEvent, event.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	first, err := ts.UpsertReaction(ctx, &store.Reaction{CreatorID: 2, ContentType: store.ReactionOnEvent, ContentID: event.ID, ReactionType: "🔥"})
	require.NoError(t, err)
	same, err := ts.UpsertReaction(ctx, &store.Reaction{CreatorID: 2, ContentType: store.ReactionOnEvent, ContentID: event.ID, ReactionType: "🔥"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	reactions, err = ts.ListReactionsFor(ctx, store.ReactionOnEvent, event.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)

	require.NoError(t, ts.DeleteReaction(ctx, &store.DeleteReaction{ID: first.ID}))
	reactions, err = ts.ListReactionsFor(ctx, store.ReactionOnEvent, event.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	_, err = ts.UpsertReaction(ctx, &store.Reaction{CreatorID: 2, ContentType: "photo", ContentID: 1, ReactionType: "👍"})
	require.Error(t, err)
}

func TestReactionsOnMessagesAreNotCached(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertReaction(ctx, &store.Reaction{CreatorID: 2, ContentType: store.ReactionOnMessage, ContentID: 5, ReactionType: "👍"})
	require.NoError(t, err)

	reactions, err := ts.ListReactionsFor(ctx, store.ReactionOnMessage, 5)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, store.ReactionOnMessage, reactions[0].ContentType)
}
