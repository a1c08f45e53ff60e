package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/service"
)

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type createProjectRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// ProjectListResponse is the body of GET /projects.
type ProjectListResponse struct {
	Projects []domain.Project `json:"projects"`
	Count    int              `json:"count"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Project domain.Project `json:"project"`
}

// List returns all projects, newest first.
//
//	@Summary	List projects
//	@Tags		projects
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	ProjectListResponse
//	@Failure	401	{object}	Envelope
//	@Router		/projects [get]
func (h *ProjectHandler) List(c echo.Context) error {
	projects, err := h.projects.List(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, ProjectListResponse{Projects: projects, Count: len(projects)})
}

// Create adds a project owned by the caller.
//
//	@Summary	Create project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		createProjectRequest	true	"Project"
//	@Success	201		{object}	ProjectResponse
//	@Failure	400		{object}	Envelope
//	@Failure	403		{object}	Envelope
//	@Router		/projects [post]
func (h *ProjectHandler) Create(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req createProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	project, err := h.projects.Create(c.Request().Context(), *actor, service.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, ProjectResponse{Project: *project})
}

// Get returns a project with its tasks.
//
//	@Summary	Get project
//	@Tags		projects
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Project ID"
//	@Success	200	{object}	ProjectResponse
//	@Failure	401	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/projects/{id} [get]
func (h *ProjectHandler) Get(c echo.Context) error {
	project, err := h.projects.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, ProjectResponse{Project: *project})
}

// Update changes a project. Only the owner or an admin may do so.
//
//	@Summary	Update project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Project ID"
//	@Param		body	body		updateProjectRequest	true	"Fields to change"
//	@Success	200		{object}	ProjectResponse
//	@Failure	400		{object}	Envelope
//	@Failure	403		{object}	Envelope
//	@Failure	404		{object}	Envelope
//	@Router		/projects/{id} [put]
func (h *ProjectHandler) Update(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req updateProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	upd := domain.ProjectUpdate{Name: req.Name, Description: req.Description}
	if req.Status != nil {
		status := domain.ProjectStatus(*req.Status)
		upd.Status = &status
	}

	project, err := h.projects.Update(c.Request().Context(), *actor, c.Param("id"), upd)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, ProjectResponse{Project: *project})
}

// Delete removes a project with its tasks.
//
//	@Summary	Delete project
//	@Tags		projects
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Project ID"
//	@Success	204
//	@Failure	403	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/projects/{id} [delete]
func (h *ProjectHandler) Delete(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	if err := h.projects.Delete(c.Request().Context(), *actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
