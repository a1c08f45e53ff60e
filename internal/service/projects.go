package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 5000
)

// ProjectStore is the store surface needed for projects.
type ProjectStore interface {
	List(ctx context.Context) ([]domain.Project, error)
	FindByID(ctx context.Context, id string) (*domain.Project, error)
	Create(ctx context.Context, project domain.Project) (*domain.Project, error)
	Update(ctx context.Context, id string, upd domain.ProjectUpdate) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// TaskLister lists tasks; projects use it to load their tasks.
type TaskLister interface {
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)
}

// ProjectService manages projects. Only admins and managers create
// projects, and only the owner or an admin may change or delete one.
type ProjectService struct {
	projects ProjectStore
	tasks    TaskLister
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projects ProjectStore, tasks TaskLister) *ProjectService {
	return &ProjectService{projects: projects, tasks: tasks}
}

// ProjectInput holds the fields of a new project.
type ProjectInput struct {
	Name        string
	Description *string
}

// List returns all projects, newest first.
func (s *ProjectService) List(ctx context.Context) ([]domain.Project, error) {
	return s.projects.List(ctx)
}

// Get returns a project with its tasks.
func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.List(ctx, domain.TaskFilter{ProjectID: id})
	if err != nil {
		return nil, err
	}
	project.Tasks = tasks
	return project, nil
}

// Create adds a project owned by actor.
func (s *ProjectService) Create(ctx context.Context, actor domain.PublicUser, in ProjectInput) (*domain.Project, error) {
	if err := Authorize(&actor, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	name, err := cleanName("name", in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.Create(ctx, domain.Project{
		Name:        name,
		Description: desc,
		Status:      domain.ProjectStatusActive,
		OwnerID:     actor.ID,
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("project created", "project_id", project.ID, "by", actor.ID)
	return project, nil
}

// Update changes the fields present in upd.
func (s *ProjectService) Update(ctx context.Context, actor domain.PublicUser, id string, upd domain.ProjectUpdate) (*domain.Project, error) {
	project, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name, err := cleanName("name", *upd.Name)
		if err != nil {
			return nil, err
		}
		upd.Name = &name
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
		if _, err := domain.ParseProjectStatus(string(*upd.Status)); err != nil {
			return nil, err
		}
	}
	if upd.IsEmpty() {
		return project, nil
	}

	return s.projects.Update(ctx, id, upd)
}

// Delete removes a project and everything in it.
func (s *ProjectService) Delete(ctx context.Context, actor domain.PublicUser, id string) error {
	if _, err := s.editable(ctx, actor, id); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	logging.FromContext(ctx).Info("project deleted", "project_id", id, "by", actor.ID)
	return nil
}

// editable loads a project the actor may change.
func (s *ProjectService) editable(ctx context.Context, actor domain.PublicUser, id string) (*domain.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !project.IsOwnedBy(actor.ID) && actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: project %s is owned by another user", domain.ErrForbidden, id)
	}
	return project, nil
}

func cleanName(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", &domain.ValidationError{Field: field, Message: "is required"}
	case utf8.RuneCountInString(s) > maxNameLength:
		return "", &domain.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return s, nil
}

// cleanDescription trims a description; blank becomes nil.
func cleanDescription(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	desc := strings.TrimSpace(*s)
	if desc == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return nil, &domain.ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
	}
	return &desc, nil
}
