package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/server/auth"
	"github.com/hrygo/plaza/server/service/user"
	"github.com/hrygo/plaza/store"
)

type createUserRequest struct {
	Username  string `json:"username" validate:"required,min=2,max=32"`
	Email     string `json:"email" validate:"required,email"`
	Nickname  string `json:"nickname" validate:"max=64"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
	Bio       string `json:"bio" validate:"max=500"`
}

type updateUserRequest struct {
	Username  *string `json:"username" validate:"omitempty,min=2,max=32"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Nickname  *string `json:"nickname" validate:"omitempty,max=64"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
}

// createUserResponse carries the new user with a session, since there is no separate sign-in.
type createUserResponse struct {
	User    *store.User   `json:"user"`
	Session *user.Session `json:"session"`
}

func (s *APIV1Service) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := s.UserService.CreateUser(ctx, &user.CreateUserRequest{
		Username:  req.Username,
		Email:     req.Email,
		Nickname:  req.Nickname,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	})
	if err != nil {
		return err
	}
	session, err := s.UserService.IssueSession(ctx, u.ID)
	if err != nil {
		return err
	}
	return created(c, createUserResponse{User: u, Session: session})
}

func (s *APIV1Service) GetUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	u, err := s.UserService.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, u)
}

func (s *APIV1Service) GetUserByUsername(c echo.Context) error {
	u, err := s.UserService.GetUserByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return ok(c, u)
}

func (s *APIV1Service) UpdateUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := s.UserService.UpdateUser(ctx, auth.UserIDFromContext(ctx), id, &user.UpdateUserRequest{
		Username:  req.Username,
		Email:     req.Email,
		Nickname:  req.Nickname,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	})
	if err != nil {
		return err
	}
	return ok(c, u)
}

func (s *APIV1Service) RevokeCurrentSession(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.UserService.RevokeSession(ctx, auth.UserIDFromContext(ctx), auth.SessionIDFromContext(ctx)); err != nil {
		return err
	}
	return deleted(c)
}
