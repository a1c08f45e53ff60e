package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/taskflow/internal/domain"
)

// projectSelect joins the owner and counts tasks. Aliases with dots map onto
// nested structs in sqlx.
const projectSelect = `SELECT p.id, p.name, p.description, p.status, p.owner_id, p.created_at, p.updated_at,
	       o.id AS "owner.id", o.name AS "owner.name", o.email AS "owner.email", o.avatar AS "owner.avatar",
	       (SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id) AS task_count
	FROM projects p
	JOIN users o ON o.id = p.owner_id`

// ProjectRepository handles project data access operations.
type ProjectRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db, now: time.Now}
}

// List returns all projects, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := r.db.SelectContext(ctx, &projects, projectSelect+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// FindByID retrieves a project by its ID.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	err := r.db.GetContext(ctx, &project, r.db.Rebind(projectSelect+` WHERE p.id = ?`), id)
	if err != nil {
		if err = mapNotFound(err); errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find project %s: %w", id, err)
	}
	return &project, nil
}

// Create inserts a new project owned by project.OwnerID.
func (r *ProjectRepository) Create(ctx context.Context, project domain.Project) (*domain.Project, error) {
	now := r.now().UTC()
	if project.ID == "" {
		project.ID = domain.NewID()
	}
	if project.Status == "" {
		project.Status = domain.ProjectStatusActive
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO projects (id, name, description, status, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		project.ID, project.Name, project.Description, string(project.Status), project.OwnerID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: owner %s", domain.ErrNotFound, project.OwnerID)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}
	return r.FindByID(ctx, project.ID)
}

// Update writes only the fields present in upd.
func (r *ProjectRepository) Update(ctx context.Context, id string, upd domain.ProjectUpdate) (*domain.Project, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullIfEmpty(*upd.Description))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC(), id)

	if err := execOne(ctx, r.db, "update project",
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// Delete removes a project together with its tasks and their comments.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, "delete project", `DELETE FROM projects WHERE id = ?`, id)
}
