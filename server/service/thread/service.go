package thread

import (
	"context"
	"strings"
	"time"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/plugin/pubsub"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

const (
	maxTitleLength   = 200
	maxContentLength = 10000
)

type service struct {
	store     Store
	publisher pubsub.Publisher
	threads   *populate.Registry[ThreadView]
	now       func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock overrides the clock used for lock timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new thread service.
func NewService(st Store, publisher pubsub.Publisher, config populate.Config, opts ...Option) Service {
	if publisher == nil {
		publisher = pubsub.Nop{}
	}
	s := &service{
		store:     st,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.threads = newThreadRegistry(st, config)
	return s
}

func newThreadRegistry(st Store, config populate.Config) *populate.Registry[ThreadView] {
	return populate.NewRegistry[ThreadView]("thread", config).Register(
		populate.NewField("creator",
			func(ctx context.Context, v *ThreadView) (*store.User, error) {
				return st.GetUser(ctx, &store.FindUser{ID: &v.CreatorID})
			},
			func(v *ThreadView, user *store.User) { v.Creator = user },
			nil,
		),
		populate.NewField("reactions",
			func(ctx context.Context, v *ThreadView) ([]*store.Reaction, error) {
				return st.ListReactionsFor(ctx, store.ReactionOnThread, v.ID)
			},
			func(v *ThreadView, reactions []*store.Reaction) { v.Reactions = reactions },
			[]*store.Reaction{},
		),
		populate.NewField("parent",
			func(ctx context.Context, v *ThreadView) (*store.Thread, error) {
				if v.ParentID == nil {
					return nil, nil
				}
				return st.GetThread(ctx, *v.ParentID)
			},
			func(v *ThreadView, parent *store.Thread) { v.Parent = parent },
			nil,
		),
	)
}

func newThreadView(thread *store.Thread) *ThreadView {
	return &ThreadView{Thread: thread, Locked: IsLocked(thread)}
}

func (s *service) CreateThread(ctx context.Context, userID int32, create *CreateThreadRequest) (*store.Thread, error) {
	title := strings.TrimSpace(create.Title)
	if title == "" {
		return nil, apierrors.BadRequest("Thread title is required")
	}
	if len(title) > maxTitleLength {
		return nil, apierrors.BadRequest("Thread title is too long")
	}
	if len(create.Content) > maxContentLength {
		return nil, apierrors.BadRequest("Thread content is too long")
	}

	if create.EventID != nil {
		event, err := s.store.GetEvent(ctx, *create.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil {
			return nil, apierrors.NotFound("event", *create.EventID)
		}
	}
	if create.ParentID != nil {
		parent, err := s.store.GetThread(ctx, *create.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apierrors.NotFound("thread", *create.ParentID)
		}
		if err := s.ensureWritable(ctx, parent); err != nil {
			return nil, err
		}
	}

	thread, err := s.store.CreateThread(ctx, &store.Thread{
		CreatorID: userID,
		EventID:   create.EventID,
		ParentID:  create.ParentID,
		Title:     title,
		Content:   create.Content,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.ThreadCreated, thread)
	return thread, nil
}

func (s *service) GetThread(ctx context.Context, id int32, req populate.Request) (*ThreadView, error) {
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apierrors.NotFound("thread", id)
	}
	view := newThreadView(thread)
	s.threads.Populate(ctx, view, req)
	return view, nil
}

// threadPagination accepts createdAt and updatedAt.
var threadPagination = pagination.DefaultConfig()

func threadSortKey(sortBy string) pagination.KeyFunc[*store.Thread] {
	if sortBy == "updatedAt" {
		return func(t *store.Thread) (int64, int32) { return t.UpdatedTs, t.ID }
	}
	return func(t *store.Thread) (int64, int32) { return t.CreatedTs, t.ID }
}

func (s *service) ListThreads(ctx context.Context, list *ListThreadsRequest) (*pagination.Page[*ThreadView], error) {
	fetch := func(ctx context.Context, w pagination.Window) ([]*store.Thread, error) {
		return s.store.ListThreads(ctx, &store.FindThread{
			EventID:   list.EventID,
			ParentID:  list.ParentID,
			CreatorID: list.CreatorID,
			TopLevel:  list.TopLevel,
			Window:    &w,
		})
	}
	page, err := pagination.Paginate(ctx, list.Cursor, threadPagination, fetch, threadSortKey(list.Cursor.SortBy))
	if err != nil {
		return nil, err
	}

	views := make([]*ThreadView, len(page.Items))
	for i, thread := range page.Items {
		views[i] = newThreadView(thread)
	}
	err = pagination.AttachChildren(ctx, views, pagination.DefaultChildConcurrency,
		func(ctx context.Context, v *ThreadView) (*store.Message, error) {
			return s.store.GetLatestMessage(ctx, v.ID)
		},
		func(v *ThreadView, message *store.Message) {
			if message != nil {
				v.LatestMessage = &MessageView{Message: message}
			}
		},
	)
	if err != nil {
		return nil, err
	}
	s.threads.PopulateMany(ctx, views, list.Populate)

	return &pagination.Page[*ThreadView]{Items: views, Pagination: page.Pagination}, nil
}

func (s *service) PostMessage(ctx context.Context, userID, threadID int32, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierrors.BadRequest("Message content is required")
	}
	if len(content) > maxContentLength {
		return nil, apierrors.BadRequest("Message content is too long")
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apierrors.NotFound("thread", threadID)
	}
	if err := s.ensureWritable(ctx, thread); err != nil {
		return nil, err
	}

	message, err := s.store.CreateMessage(ctx, &store.Message{
		ThreadID:  threadID,
		CreatorID: userID,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, pubsub.MessageCreated, message)
	return message, nil
}

var messagePagination = pagination.Config{
	DefaultLimit:  50,
	MaxLimit:      200,
	DefaultSortBy: "createdAt",
	SortColumns:   map[string]string{"createdAt": "created_ts"},
}

func (s *service) ListMessages(ctx context.Context, threadID int32, cursor pagination.Cursor) (*pagination.Page[*MessageView], error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apierrors.NotFound("thread", threadID)
	}

	fetch := func(ctx context.Context, w pagination.Window) ([]*store.Message, error) {
		return s.store.ListMessages(ctx, &store.FindMessage{ThreadID: &threadID, Window: &w})
	}
	key := func(m *store.Message) (int64, int32) { return m.CreatedTs, m.ID }
	page, err := pagination.Paginate(ctx, cursor, messagePagination, fetch, key)
	if err != nil {
		return nil, err
	}

	views := make([]*MessageView, len(page.Items))
	for i, message := range page.Items {
		views[i] = &MessageView{Message: message}
	}
	err = populate.AttachUsers(ctx, views,
		func(v *MessageView) int32 { return v.CreatorID },
		func(v *MessageView, user *store.User) { v.Author = user },
		s.store.GetUsersByIDs,
	)
	if err != nil {
		return nil, err
	}
	return &pagination.Page[*MessageView]{Items: views, Pagination: page.Pagination}, nil
}
