// Package thread implements threads, their messages and reactions, and the
// thread lock state machine.
//
// A thread is locked when the last entry of its lock history carries both a
// locker and a timestamp. Locking appends an entry; unlocking clears the
// history. Only the thread author may lock or unlock. A thread is chain-locked
// when it or its direct parent is locked; chain-locked threads accept no new
// messages, reactions or replies.
package thread

import (
	"context"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/store"
)

// Service defines the thread operations exposed to the API layer.
type Service interface {
	// CreateThread creates a thread, optionally attached to an event or replying to a parent thread.
	CreateThread(ctx context.Context, userID int32, create *CreateThreadRequest) (*store.Thread, error)

	// GetThread returns a thread with the requested related fields resolved.
	GetThread(ctx context.Context, id int32, req populate.Request) (*ThreadView, error)

	// ListThreads returns a page of threads, each carrying its latest message.
	ListThreads(ctx context.Context, list *ListThreadsRequest) (*pagination.Page[*ThreadView], error)

	// Lock locks the thread on behalf of its author.
	Lock(ctx context.Context, threadID, userID int32) (*store.Thread, error)

	// Unlock unlocks the thread on behalf of its author and clears its lock history.
	Unlock(ctx context.Context, threadID, userID int32) (*store.Thread, error)

	// IsChainLocked reports whether the thread or its direct parent is locked.
	IsChainLocked(ctx context.Context, threadID int32) (bool, error)

	// PostMessage adds a message to a thread that is not chain-locked.
	PostMessage(ctx context.Context, userID, threadID int32, content string) (*store.Message, error)

	// ListMessages returns a page of a thread's messages with their authors.
	ListMessages(ctx context.Context, threadID int32, cursor pagination.Cursor) (*pagination.Page[*MessageView], error)

	// React records a reaction on an event, thread or message.
	React(ctx context.Context, userID int32, react *ReactRequest) (*store.Reaction, error)

	// Unreact removes a reaction owned by the user.
	Unreact(ctx context.Context, userID, reactionID int32) error
}

// Store is the interface for store operations needed by the thread service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateThread(ctx context.Context, create *store.Thread) (*store.Thread, error)
	GetThread(ctx context.Context, id int32) (*store.Thread, error)
	GetThreadForUpdate(ctx context.Context, id int32) (*store.Thread, error)
	ListThreads(ctx context.Context, find *store.FindThread) ([]*store.Thread, error)
	UpdateThread(ctx context.Context, update *store.UpdateThread) (*store.Thread, error)
	InvalidateThread(ctx context.Context, id int32)

	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	GetMessage(ctx context.Context, id int32) (*store.Message, error)
	GetLatestMessage(ctx context.Context, threadID int32) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)

	UpsertReaction(ctx context.Context, upsert *store.Reaction) (*store.Reaction, error)
	GetReaction(ctx context.Context, id int32) (*store.Reaction, error)
	DeleteReaction(ctx context.Context, delete *store.DeleteReaction) error
	ListReactionsFor(ctx context.Context, contentType store.ReactionContentType, contentID int32) ([]*store.Reaction, error)

	GetEvent(ctx context.Context, id int32) (*store.Event, error)
	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	GetUsersByIDs(ctx context.Context, ids []int32) (map[int32]*store.User, error)
}

// CreateThreadRequest represents the request to create a thread.
type CreateThreadRequest struct {
	EventID  *int32
	ParentID *int32
	Title    string
	Content  string
}

// ListThreadsRequest filters and pages a thread listing.
type ListThreadsRequest struct {
	EventID   *int32
	ParentID  *int32
	CreatorID *int32
	// TopLevel restricts the listing to threads without a parent.
	TopLevel bool
	Cursor   pagination.Cursor
	Populate populate.Request
}

// ReactRequest represents the request to react to a piece of content.
type ReactRequest struct {
	ContentType  store.ReactionContentType
	ContentID    int32
	ReactionType string
}

// ThreadView is a thread with its resolved relations.
type ThreadView struct {
	*store.Thread

	Locked        bool              `json:"locked"`
	Creator       *store.User       `json:"creator,omitempty"`
	Parent        *store.Thread     `json:"parent,omitempty"`
	Reactions     []*store.Reaction `json:"reactions,omitempty"`
	LatestMessage *MessageView      `json:"latestMessage,omitempty"`
}

// MessageView is a message with its author.
type MessageView struct {
	*store.Message

	Author *store.User `json:"author,omitempty"`
}

// LockChange is the payload of thread.locked and thread.unlocked.
type LockChange struct {
	ThreadID    int32             `json:"threadId"`
	UserID      int32             `json:"userId"`
	LockHistory []store.LockEntry `json:"lockHistory"`
}
