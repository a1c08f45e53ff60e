package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/service"
)

// UserHandler handles user administration endpoints.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UserListResponse is the body of GET /users.
type UserListResponse struct {
	Users []domain.PublicUser `json:"users"`
	Count int                 `json:"count"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MANAGER MEMBER"`
}

// List returns all users, newest first.
//
//	@Summary	List users
//	@Tags		users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	UserListResponse
//	@Failure	401	{object}	Envelope
//	@Failure	403	{object}	Envelope
//	@Router		/users [get]
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.users.List(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, UserListResponse{Users: users, Count: len(users)})
}

// Get returns a single user.
//
//	@Summary	Get user
//	@Tags		users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"User ID"
//	@Success	200	{object}	UserResponse
//	@Failure	401	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.users.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, UserResponse{User: *user})
}

// SetRole changes a user's role.
//
//	@Summary	Change user role
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"User ID"
//	@Param		body	body		setRoleRequest	true	"New role"
//	@Success	200		{object}	UserResponse
//	@Failure	400		{object}	Envelope
//	@Failure	403		{object}	Envelope
//	@Failure	404		{object}	Envelope
//	@Router		/users/{id}/role [put]
func (h *UserHandler) SetRole(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req setRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.SetRole(c.Request().Context(), *actor, c.Param("id"), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, UserResponse{User: *user})
}

// Delete removes a user.
//
//	@Summary	Delete user
//	@Tags		users
//	@Security	BearerAuth
//	@Param		id	path	string	true	"User ID"
//	@Success	204
//	@Failure	400	{object}	Envelope
//	@Failure	403	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	if err := h.users.Delete(c.Request().Context(), *actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
