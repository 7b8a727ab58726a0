package store

import (
	"context"
	"time"

	"github.com/hrygo/plaza/internal/pagination"
)

type Message struct {
	ID        int32  `json:"id"`
	ThreadID  int32  `json:"threadId"`
	CreatorID int32  `json:"creatorId"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

type FindMessage struct {
	ID       *int32
	ThreadID *int32

	Window *pagination.Window
	// Without a window, messages are returned newest first.
	Limit  *int
	Offset *int
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetLatestMessage returns the newest message of a thread, or nil.
func (s *Store) GetLatestMessage(ctx context.Context, threadID int32) (*Message, error) {
	limit := 1
	list, err := s.ListMessages(ctx, &FindMessage{ThreadID: &threadID, Limit: &limit})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetMessage returns the message with id, or nil.
func (s *Store) GetMessage(ctx context.Context, id int32) (*Message, error) {
	list, err := s.ListMessages(ctx, &FindMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
