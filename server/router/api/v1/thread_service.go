package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/server/auth"
	"github.com/hrygo/plaza/server/service/thread"
	"github.com/hrygo/plaza/store"
)

type createThreadRequest struct {
	EventID  *int32 `json:"eventId" validate:"omitempty,gt=0"`
	ParentID *int32 `json:"parentId" validate:"omitempty,gt=0"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"max=10000"`
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type reactRequest struct {
	ContentType  store.ReactionContentType `json:"contentType" validate:"required,oneof=event thread message"`
	ContentID    int32                     `json:"contentId" validate:"required,gt=0"`
	ReactionType string                    `json:"reactionType" validate:"required,max=32"`
}

func (s *APIV1Service) ListThreads(c echo.Context) error {
	cursor, err := bindCursor(c)
	if err != nil {
		return err
	}
	list := &thread.ListThreadsRequest{
		TopLevel: c.QueryParam("topLevel") == "true",
		Cursor:   cursor,
		Populate: populate.ParseRequest(c.QueryParam("populate")),
	}
	if list.EventID, err = queryID(c, "eventId"); err != nil {
		return err
	}
	if list.ParentID, err = queryID(c, "parentId"); err != nil {
		return err
	}
	if list.CreatorID, err = queryID(c, "creatorId"); err != nil {
		return err
	}
	page, err := s.ThreadService.ListThreads(c.Request().Context(), list)
	if err != nil {
		return err
	}
	return ok(c, page)
}

func (s *APIV1Service) CreateThread(c echo.Context) error {
	var req createThreadRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	th, err := s.ThreadService.CreateThread(ctx, auth.UserIDFromContext(ctx), &thread.CreateThreadRequest{
		EventID:  req.EventID,
		ParentID: req.ParentID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		return err
	}
	return created(c, th)
}

func (s *APIV1Service) GetThread(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := s.ThreadService.GetThread(c.Request().Context(), id, populate.ParseRequest(c.QueryParam("populate")))
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (s *APIV1Service) LockThread(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	th, err := s.ThreadService.Lock(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return ok(c, th)
}

func (s *APIV1Service) UnlockThread(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	th, err := s.ThreadService.Unlock(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return ok(c, th)
}

func (s *APIV1Service) ListMessages(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	cursor, err := bindCursor(c)
	if err != nil {
		return err
	}
	page, err := s.ThreadService.ListMessages(c.Request().Context(), id, cursor)
	if err != nil {
		return err
	}
	return ok(c, page)
}

func (s *APIV1Service) PostMessage(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	message, err := s.ThreadService.PostMessage(ctx, auth.UserIDFromContext(ctx), id, req.Content)
	if err != nil {
		return err
	}
	return created(c, message)
}

func (s *APIV1Service) CreateReaction(c echo.Context) error {
	var req reactRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	reaction, err := s.ThreadService.React(ctx, auth.UserIDFromContext(ctx), &thread.ReactRequest{
		ContentType:  req.ContentType,
		ContentID:    req.ContentID,
		ReactionType: req.ReactionType,
	})
	if err != nil {
		return err
	}
	return created(c, reaction)
}

func (s *APIV1Service) DeleteReaction(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.ThreadService.Unreact(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		return err
	}
	return deleted(c)
}
