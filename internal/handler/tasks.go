package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/service"
)

// TaskHandler handles task and comment endpoints.
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type createTaskRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
	ProjectID   string  `json:"projectId" validate:"required"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *string `json:"dueDate"`
	Priority    *string `json:"priority"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *string `json:"dueDate"`
}

type addCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// TaskListResponse is the body of GET /tasks.
type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Count int           `json:"count"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task domain.Task `json:"task"`
}

// CommentResponse wraps a single comment.
type CommentResponse struct {
	Comment domain.Comment `json:"comment"`
}

// List returns tasks, optionally filtered.
//
//	@Summary	List tasks
//	@Tags		tasks
//	@Produce	json
//	@Security	BearerAuth
//	@Param		projectId	query		string	false	"Project ID"
//	@Param		assigneeId	query		string	false	"Assignee ID"
//	@Param		status		query		string	false	"TODO, IN_PROGRESS, IN_REVIEW or COMPLETED"
//	@Param		priority	query		string	false	"LOW, MEDIUM, HIGH or URGENT"
//	@Success	200			{object}	TaskListResponse
//	@Failure	400			{object}	Envelope
//	@Failure	401			{object}	Envelope
//	@Router		/tasks [get]
func (h *TaskHandler) List(c echo.Context) error {
	tasks, err := h.tasks.List(c.Request().Context(), domain.TaskFilter{
		ProjectID:  c.QueryParam("projectId"),
		AssigneeID: c.QueryParam("assigneeId"),
		Status:     domain.TaskStatus(c.QueryParam("status")),
		Priority:   domain.TaskPriority(c.QueryParam("priority")),
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, TaskListResponse{Tasks: tasks, Count: len(tasks)})
}

// Create adds a task to a project.
//
//	@Summary	Create task
//	@Tags		tasks
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		createTaskRequest	true	"Task"
//	@Success	201		{object}	TaskResponse
//	@Failure	400		{object}	Envelope
//	@Failure	404		{object}	Envelope
//	@Router		/tasks [post]
func (h *TaskHandler) Create(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req createTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	due, err := parseDueDate(req.DueDate)
	if err != nil {
		return err
	}
	in := service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
		AssigneeID:  req.AssigneeID,
		DueDate:     due,
	}
	if req.Priority != nil {
		p := domain.TaskPriority(*req.Priority)
		in.Priority = &p
	}

	task, err := h.tasks.Create(c.Request().Context(), *actor, in)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, TaskResponse{Task: *task})
}

// Get returns a task with its comments.
//
//	@Summary	Get task
//	@Tags		tasks
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Task ID"
//	@Success	200	{object}	TaskResponse
//	@Failure	401	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/tasks/{id} [get]
func (h *TaskHandler) Get(c echo.Context) error {
	task, err := h.tasks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, TaskResponse{Task: *task})
}

// Update changes a task. An empty assigneeId unassigns it.
//
//	@Summary	Update task
//	@Tags		tasks
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string				true	"Task ID"
//	@Param		body	body		updateTaskRequest	true	"Fields to change"
//	@Success	200		{object}	TaskResponse
//	@Failure	400		{object}	Envelope
//	@Failure	404		{object}	Envelope
//	@Router		/tasks/{id} [put]
func (h *TaskHandler) Update(c echo.Context) error {
	var req updateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	due, err := parseDueDate(req.DueDate)
	if err != nil {
		return err
	}
	upd := domain.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		DueDate:     due,
	}
	if req.Status != nil {
		s := domain.TaskStatus(*req.Status)
		upd.Status = &s
	}
	if req.Priority != nil {
		p := domain.TaskPriority(*req.Priority)
		upd.Priority = &p
	}

	task, err := h.tasks.Update(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, TaskResponse{Task: *task})
}

// Delete removes a task.
//
//	@Summary	Delete task
//	@Tags		tasks
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Task ID"
//	@Success	204
//	@Failure	403	{object}	Envelope
//	@Failure	404	{object}	Envelope
//	@Router		/tasks/{id} [delete]
func (h *TaskHandler) Delete(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	if err := h.tasks.Delete(c.Request().Context(), *actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddComment posts a comment on a task.
//
//	@Summary	Comment on task
//	@Tags		tasks
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string				true	"Task ID"
//	@Param		body	body		addCommentRequest	true	"Comment"
//	@Success	201		{object}	CommentResponse
//	@Failure	400		{object}	Envelope
//	@Failure	404		{object}	Envelope
//	@Router		/tasks/{id}/comments [post]
func (h *TaskHandler) AddComment(c echo.Context) error {
	actor, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req addCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	comment, err := h.tasks.AddComment(c.Request().Context(), *actor, c.Param("id"), req.Content)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, CommentResponse{Comment: *comment})
}

// parseDueDate accepts an RFC 3339 timestamp or a plain date.
func parseDueDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t, nil
		}
	}
	return nil, &domain.ValidationError{Field: "dueDate", Message: "must be an ISO 8601 date"}
}
