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

const taskSelect = `SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date,
	       t.project_id, t.assignee_id, t.creator_id, t.created_at, t.updated_at,
	       p.id AS "project.id", p.name AS "project.name",
	       c.id AS "creator.id", c.name AS "creator.name", c.email AS "creator.email", c.avatar AS "creator.avatar",
	       a.name AS assignee_name, a.email AS assignee_email, a.avatar AS assignee_avatar,
	       (SELECT COUNT(*) FROM comments cm WHERE cm.task_id = t.id) AS comment_count
	FROM tasks t
	JOIN projects p ON p.id = t.project_id
	JOIN users c ON c.id = t.creator_id
	LEFT JOIN users a ON a.id = t.assignee_id`

const commentSelect = `SELECT cm.id, cm.content, cm.task_id, cm.author_id, cm.created_at, cm.updated_at,
	       u.id AS "author.id", u.name AS "author.name", u.email AS "author.email", u.avatar AS "author.avatar"
	FROM comments cm
	JOIN users u ON u.id = cm.author_id`

// taskRow carries the nullable assignee columns of the left join.
type taskRow struct {
	domain.Task
	AssigneeName   *string `db:"assignee_name"`
	AssigneeEmail  *string `db:"assignee_email"`
	AssigneeAvatar *string `db:"assignee_avatar"`
}

func (row taskRow) toDomain() domain.Task {
	task := row.Task
	if task.AssigneeID != nil && row.AssigneeName != nil {
		task.Assignee = &domain.UserRef{
			ID:     *task.AssigneeID,
			Name:   *row.AssigneeName,
			Email:  deref(row.AssigneeEmail),
			Avatar: row.AssigneeAvatar,
		}
	}
	return task
}

// TaskRepository handles task and comment data access operations.
type TaskRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// List returns the tasks matching filter, newest first.
func (r *TaskRepository) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != "" {
		where = append(where, "t.project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AssigneeID != "" {
		where = append(where, "t.assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := taskSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]domain.Task, len(rows))
	for i, row := range rows {
		tasks[i] = row.toDomain()
	}
	return tasks, nil
}

// FindByID retrieves a task by its ID, without comments.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(taskSelect+` WHERE t.id = ?`), id)
	if err != nil {
		if err = mapNotFound(err); errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	task := row.toDomain()
	return &task, nil
}

// Create inserts a new task. A missing project, creator or assignee yields
// domain.ErrConflict.
func (r *TaskRepository) Create(ctx context.Context, task domain.Task) (*domain.Task, error) {
	now := r.now().UTC()
	if task.ID == "" {
		task.ID = domain.NewID()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO tasks (id, title, description, status, priority, due_date, project_id,
		                    assignee_id, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		utcPtr(task.DueDate), task.ProjectID, task.AssigneeID, task.CreatorID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: task references a missing project or user", domain.ErrConflict)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return r.FindByID(ctx, task.ID)
}

// Update writes only the fields present in upd.
func (r *TaskRepository) Update(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullIfEmpty(*upd.Description))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*upd.Priority))
	}
	if upd.AssigneeID != nil {
		sets = append(sets, "assignee_id = ?")
		args = append(args, nullIfEmpty(*upd.AssigneeID))
	}
	if upd.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, upd.DueDate.UTC())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC(), id)

	err := execOne(ctx, r.db, "update task",
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: assignee does not exist", domain.ErrConflict)
		}
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// Delete removes a task and its comments.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return execOne(ctx, r.db, "delete task", `DELETE FROM tasks WHERE id = ?`, id)
}

// ListComments returns the comments of a task, newest first.
func (r *TaskRepository) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	comments := []domain.Comment{}
	err := r.db.SelectContext(ctx, &comments,
		r.db.Rebind(commentSelect+` WHERE cm.task_id = ? ORDER BY cm.created_at DESC, cm.id DESC`), taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments for task %s: %w", taskID, err)
	}
	return comments, nil
}

// AddComment inserts a comment. A missing task yields domain.ErrNotFound.
func (r *TaskRepository) AddComment(ctx context.Context, comment domain.Comment) (*domain.Comment, error) {
	now := r.now().UTC()
	if comment.ID == "" {
		comment.ID = domain.NewID()
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO comments (id, content, task_id, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		comment.ID, comment.Content, comment.TaskID, comment.AuthorID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, comment.TaskID)
		}
		return nil, fmt.Errorf("add comment: %w", err)
	}

	var created domain.Comment
	if err := r.db.GetContext(ctx, &created, r.db.Rebind(commentSelect+` WHERE cm.id = ?`), comment.ID); err != nil {
		return nil, fmt.Errorf("read comment %s: %w", comment.ID, err)
	}
	return &created, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
