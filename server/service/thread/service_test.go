package thread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

func TestCreateThreadValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")

	_, err := f.service.CreateThread(ctx, author.ID, &CreateThreadRequest{Title: "   "})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))

	missing := int32(404)
	_, err = f.service.CreateThread(ctx, author.ID, &CreateThreadRequest{Title: "Hi", EventID: &missing})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))

	_, err = f.service.CreateThread(ctx, author.ID, &CreateThreadRequest{Title: "Hi", ParentID: &missing})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))

	thread, err := f.service.CreateThread(ctx, author.ID, &CreateThreadRequest{Title: "  Hi  ", Content: "body"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", thread.Title)
	assert.Len(t, f.emitted(pubsub.ThreadCreated), 1)
}

func TestListThreadsAttachesLatestMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	author := f.createUser(ctx, t, "ada")

	var threads []*store.Thread
	for i, title := range []string{"first", "second", "third"} {
		thread, err := f.store.CreateThread(ctx, &store.Thread{CreatorID: author.ID, Title: title, CreatedTs: int64(100 + i)})
		require.NoError(t, err)
		threads = append(threads, thread)
	}
	for i, content := range []string{"old", "new"} {
		_, err := f.store.CreateMessage(ctx, &store.Message{ThreadID: threads[0].ID, CreatorID: author.ID, Content: content, CreatedTs: int64(200 + i)})
		require.NoError(t, err)
	}

	page, err := f.service.ListThreads(ctx, &ListThreadsRequest{
		Cursor:   pagination.Cursor{Limit: 2},
		Populate: populate.Fields("creator"),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "third", page.Items[0].Title)
	assert.Equal(t, "second", page.Items[1].Title)
	assert.Nil(t, page.Items[0].LatestMessage)
	assert.True(t, page.Pagination.HasNext)
	require.NotNil(t, page.Items[0].Creator)
	assert.Equal(t, "ada", page.Items[0].Creator.Username)

	next, err := f.service.ListThreads(ctx, &ListThreadsRequest{
		Cursor: pagination.Cursor{Limit: 2, Next: page.Pagination.Next},
	})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "first", next.Items[0].Title)
	require.NotNil(t, next.Items[0].LatestMessage)
	assert.Equal(t, "new", next.Items[0].LatestMessage.Content)
	assert.False(t, next.Pagination.HasNext)
}

func TestListThreadsRejectsMixedCursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	_, err := f.service.ListThreads(ctx, &ListThreadsRequest{Cursor: pagination.Cursor{Page: 2, Next: "100"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestListMessagesWithAuthors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	ada := f.createUser(ctx, t, "ada")
	grace := f.createUser(ctx, t, "grace")
	thread := f.createThread(ctx, t, ada.ID, "Parking", nil)

	_, err := f.service.PostMessage(ctx, ada.ID, thread.ID, "hello")
	require.NoError(t, err)
	_, err = f.service.PostMessage(ctx, grace.ID, thread.ID, "hi")
	require.NoError(t, err)
	_, err = f.service.PostMessage(ctx, ada.ID, thread.ID, "  ")
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))

	page, err := f.service.ListMessages(ctx, thread.ID, pagination.Cursor{SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		require.NotNil(t, item.Author)
		assert.Equal(t, item.CreatorID, item.Author.ID)
	}
	assert.Len(t, f.emitted(pubsub.MessageCreated), 2)

	_, err = f.service.ListMessages(ctx, thread.ID, pagination.Cursor{SortBy: "updatedAt"})
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)

	_, err = f.service.ListMessages(ctx, 9999, pagination.Cursor{})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	ada := f.createUser(ctx, t, "ada")
	grace := f.createUser(ctx, t, "grace")
	thread := f.createThread(ctx, t, ada.ID, "Parking", nil)

	view, err := f.service.GetThread(ctx, thread.ID, populate.Fields("reactions"))
	require.NoError(t, err)
	assert.Empty(t, view.Reactions)

	reaction, err := f.service.React(ctx, grace.ID, &ReactRequest{ContentType: store.ReactionOnThread, ContentID: thread.ID, ReactionType: "heart"})
	require.NoError(t, err)

	view, err = f.service.GetThread(ctx, thread.ID, populate.Fields("reactions", "unknown"))
	require.NoError(t, err)
	require.Len(t, view.Reactions, 1)
	assert.Equal(t, "heart", view.Reactions[0].ReactionType)

	err = f.service.Unreact(ctx, ada.ID, reaction.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeForbidden))

	require.NoError(t, f.service.Unreact(ctx, grace.ID, reaction.ID))
	view, err = f.service.GetThread(ctx, thread.ID, populate.Fields("reactions"))
	require.NoError(t, err)
	assert.Empty(t, view.Reactions)

	err = f.service.Unreact(ctx, grace.ID, reaction.ID)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))

	_, err = f.service.React(ctx, grace.ID, &ReactRequest{ContentType: "photo", ContentID: 1, ReactionType: "heart"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeBadRequest))

	_, err = f.service.React(ctx, grace.ID, &ReactRequest{ContentType: store.ReactionOnEvent, ContentID: 404, ReactionType: "heart"})
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}

func TestGetThreadPopulatesParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	ada := f.createUser(ctx, t, "ada")
	root := f.createThread(ctx, t, ada.ID, "Root", nil)
	reply := f.createThread(ctx, t, ada.ID, "Reply", &root.ID)

	view, err := f.service.GetThread(ctx, reply.ID, populate.AllFields)
	require.NoError(t, err)
	require.NotNil(t, view.Parent)
	assert.Equal(t, root.ID, view.Parent.ID)
	require.NotNil(t, view.Creator)
	assert.NotNil(t, view.Reactions)

	_, err = f.service.GetThread(ctx, 9999, populate.None)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeNotFound))
}
