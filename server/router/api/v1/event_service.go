package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/server/auth"
	"github.com/hrygo/plaza/server/service/event"
	"github.com/hrygo/plaza/store"
)

type createEventRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=10000"`
	Latitude    float64  `json:"latitude" validate:"min=-90,max=90"`
	Longitude   float64  `json:"longitude" validate:"min=-180,max=180"`
	StartTs     int64    `json:"startTs" validate:"min=0"`
	EndTs       int64    `json:"endTs" validate:"min=0"`
	Tags        []string `json:"tags" validate:"max=20,dive,required,max=64"`
}

type updateEventRequest struct {
	Title       *string            `json:"title" validate:"omitempty,max=200"`
	Description *string            `json:"description" validate:"omitempty,max=10000"`
	Status      *store.EventStatus `json:"status" validate:"omitempty,oneof=draft verified cancelled"`
	Latitude    *float64           `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64           `json:"longitude" validate:"omitempty,min=-180,max=180"`
	StartTs     *int64             `json:"startTs" validate:"omitempty,min=0"`
	EndTs       *int64             `json:"endTs" validate:"omitempty,min=0"`
}

type addTagRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type addMediaRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"omitempty,max=32"`
}

type verifyRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,min=-180,max=180"`
}

// bindCursor reads limit, page, next, sortBy, sortOrder and stable from the query string.
func bindCursor(c echo.Context) (pagination.Cursor, error) {
	var cursor pagination.Cursor
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &cursor); err != nil {
		return cursor, badRequest("Invalid pagination parameters")
	}
	return cursor, nil
}

func (s *APIV1Service) ListEvents(c echo.Context) error {
	cursor, err := bindCursor(c)
	if err != nil {
		return err
	}
	creatorID, err := queryID(c, "creatorId")
	if err != nil {
		return err
	}
	list := &event.ListEventsRequest{
		CreatorID: creatorID,
		Search:    c.QueryParam("q"),
		Cursor:    cursor,
		Populate:  populate.ParseRequest(c.QueryParam("populate")),
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := store.EventStatus(raw)
		list.Status = &status
	}
	page, err := s.EventService.ListEvents(c.Request().Context(), list)
	if err != nil {
		return err
	}
	return ok(c, page)
}

func (s *APIV1Service) CreateEvent(c echo.Context) error {
	var req createEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	ev, err := s.EventService.CreateEvent(ctx, auth.UserIDFromContext(ctx), &event.CreateEventRequest{
		Title:       req.Title,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		StartTs:     req.StartTs,
		EndTs:       req.EndTs,
		Tags:        req.Tags,
	})
	if err != nil {
		return err
	}
	return created(c, ev)
}

func (s *APIV1Service) GetEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := s.EventService.GetEvent(c.Request().Context(), id, populate.ParseRequest(c.QueryParam("populate")))
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (s *APIV1Service) UpdateEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	updated, err := s.EventService.UpdateEvent(ctx, auth.UserIDFromContext(ctx), id, &event.UpdateEventRequest{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		StartTs:     req.StartTs,
		EndTs:       req.EndTs,
	})
	if err != nil {
		return err
	}
	return ok(c, updated)
}

func (s *APIV1Service) DeleteEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.EventService.DeleteEvent(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		return err
	}
	return deleted(c)
}

func (s *APIV1Service) AddEventTag(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req addTagRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	tag, err := s.EventService.AddTag(ctx, auth.UserIDFromContext(ctx), id, req.Name)
	if err != nil {
		return err
	}
	return created(c, tag)
}

func (s *APIV1Service) RemoveEventTag(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tagID, err := pathID(c, "tagId")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.EventService.RemoveTag(ctx, auth.UserIDFromContext(ctx), id, tagID); err != nil {
		return err
	}
	return deleted(c)
}

func (s *APIV1Service) AddEventMedia(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req addMediaRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	media, err := s.EventService.AddMedia(ctx, auth.UserIDFromContext(ctx), id, &event.AddMediaRequest{URL: req.URL, Type: req.Type})
	if err != nil {
		return err
	}
	return created(c, media)
}

func (s *APIV1Service) RemoveEventMedia(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	mediaID, err := pathID(c, "mediaId")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.EventService.RemoveMedia(ctx, auth.UserIDFromContext(ctx), id, mediaID); err != nil {
		return err
	}
	return deleted(c)
}

func (s *APIV1Service) JoinEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	participant, err := s.EventService.Join(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return err
	}
	return created(c, participant)
}

func (s *APIV1Service) LeaveEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.EventService.Leave(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		return err
	}
	return deleted(c)
}

func (s *APIV1Service) VerifyEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	result, err := s.EventService.Verify(ctx, auth.UserIDFromContext(ctx), id, event.Coordinates{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		return err
	}
	return created(c, result)
}
