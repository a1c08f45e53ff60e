package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
)

const maxCommentLength = 5000

// TaskStore is the store surface needed for tasks and their comments.
type TaskStore interface {
	TaskLister
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	Create(ctx context.Context, task domain.Task) (*domain.Task, error)
	Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error)
	Delete(ctx context.Context, id string) error
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	AddComment(ctx context.Context, comment domain.Comment) (*domain.Comment, error)
}

// ProjectFinder looks up a project by ID.
type ProjectFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Project, error)
}

// UserFinder looks up a user by ID.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// TaskService manages tasks and comments. Any authenticated user may create
// and edit tasks; deleting one is limited to its creator, admins and
// managers.
type TaskService struct {
	tasks    TaskStore
	projects ProjectFinder
	users    UserFinder
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks TaskStore, projects ProjectFinder, users UserFinder) *TaskService {
	return &TaskService{tasks: tasks, projects: projects, users: users}
}

// TaskInput holds the fields of a new task.
type TaskInput struct {
	Title       string
	Description *string
	ProjectID   string
	AssigneeID  *string
	DueDate     *time.Time
	Priority    *domain.TaskPriority
}

// List returns the tasks matching filter, newest first.
func (s *TaskService) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	if filter.Status != "" {
		if _, err := domain.ParseTaskStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	if filter.Priority != "" {
		if _, err := domain.ParseTaskPriority(string(filter.Priority)); err != nil {
			return nil, err
		}
	}
	return s.tasks.List(ctx, filter)
}

// Get returns a task with its comments.
func (s *TaskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	comments, err := s.tasks.ListComments(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Comments = comments
	return task, nil
}

// Create adds a task to an existing project, created by actor.
func (s *TaskService) Create(ctx context.Context, actor domain.PublicUser, in TaskInput) (*domain.Task, error) {
	title, err := cleanName("title", in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}

	priority := domain.TaskPriorityMedium
	if in.Priority != nil {
		if priority, err = domain.ParseTaskPriority(string(*in.Priority)); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, &domain.ValidationError{Field: "projectId", Message: "is required"}
	}
	if _, err := s.projects.FindByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	var assignee *string
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if err := s.requireAssignee(ctx, *in.AssigneeID); err != nil {
			return nil, err
		}
		assignee = in.AssigneeID
	}

	task, err := s.tasks.Create(ctx, domain.Task{
		Title:       title,
		Description: desc,
		Status:      domain.TaskStatusTodo,
		Priority:    priority,
		DueDate:     in.DueDate,
		ProjectID:   in.ProjectID,
		AssigneeID:  assignee,
		CreatorID:   actor.ID,
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("task created", "task_id", task.ID, "project_id", task.ProjectID, "by", actor.ID)
	return task, nil
}

// Update changes the fields present in upd.
func (s *TaskService) Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title, err := cleanName("title", *upd.Title)
		if err != nil {
			return nil, err
		}
		upd.Title = &title
	}
	if upd.Description != nil {
		desc, err := cleanDescription(upd.Description)
		if err != nil {
			return nil, err
		}
		upd.Description = new(string)
		if desc != nil {
			*upd.Description = *desc
		}
	}
	if upd.Status != nil {
		if _, err := domain.ParseTaskStatus(string(*upd.Status)); err != nil {
			return nil, err
		}
	}
	if upd.Priority != nil {
		if _, err := domain.ParseTaskPriority(string(*upd.Priority)); err != nil {
			return nil, err
		}
	}
	if upd.AssigneeID != nil && *upd.AssigneeID != "" {
		if err := s.requireAssignee(ctx, *upd.AssigneeID); err != nil {
			return nil, err
		}
	}
	if upd.IsEmpty() {
		return task, nil
	}

	return s.tasks.Update(ctx, id, upd)
}

// Delete removes a task and its comments.
func (s *TaskService) Delete(ctx context.Context, actor domain.PublicUser, id string) error {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !task.IsCreatedBy(actor.ID) {
		if err := Authorize(&actor, domain.RoleAdmin, domain.RoleManager); err != nil {
			return err
		}
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	logging.FromContext(ctx).Info("task deleted", "task_id", id, "by", actor.ID)
	return nil
}

// AddComment posts a comment by actor on a task.
func (s *TaskService) AddComment(ctx context.Context, actor domain.PublicUser, taskID, content string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, &domain.ValidationError{Field: "content", Message: "is required"}
	case utf8.RuneCountInString(content) > maxCommentLength:
		return nil, &domain.ValidationError{Field: "content", Message: fmt.Sprintf("must be at most %d characters", maxCommentLength)}
	}

	if _, err := s.tasks.FindByID(ctx, taskID); err != nil {
		return nil, err
	}

	return s.tasks.AddComment(ctx, domain.Comment{
		Content:  content,
		TaskID:   taskID,
		AuthorID: actor.ID,
	})
}

func (s *TaskService) requireAssignee(ctx context.Context, id string) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ValidationError{Field: "assigneeId", Message: "does not match any user"}
		}
		return err
	}
	return nil
}
