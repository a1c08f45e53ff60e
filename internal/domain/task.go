package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// ParseTaskStatus validates a task status name.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusCompleted:
		return st, nil
	default:
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown task status %q", s)}
	}
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// ParseTaskPriority validates a task priority name.
func ParseTaskPriority(s string) (TaskPriority, error) {
	switch p := TaskPriority(s); p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return p, nil
	default:
		return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown task priority %q", s)}
	}
}

// Task represents a unit of work within a project.
type Task struct {
	ID           string       `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	Description  *string      `json:"description,omitempty" db:"description"`
	Status       TaskStatus   `json:"status" db:"status"`
	Priority     TaskPriority `json:"priority" db:"priority"`
	DueDate      *time.Time   `json:"dueDate,omitempty" db:"due_date"`
	ProjectID    string       `json:"projectId" db:"project_id"`
	AssigneeID   *string      `json:"assigneeId,omitempty" db:"assignee_id"`
	CreatorID    string       `json:"creatorId" db:"creator_id"`
	CommentCount int          `json:"commentCount" db:"comment_count"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" db:"updated_at"`

	Project  ProjectRef `json:"project" db:"project"`
	Creator  UserRef    `json:"creator" db:"creator"`
	Assignee *UserRef   `json:"assignee,omitempty" db:"-"`

	// Comments is only loaded for single-task reads, newest first.
	Comments []Comment `json:"comments,omitempty" db:"-"`
}

// IsCreatedBy reports whether the user created the task.
func (t Task) IsCreatedBy(userID string) bool {
	return t.CreatorID == userID
}

// TaskUpdate carries the optional fields of a task update. Nil fields are
// left unchanged. An empty AssigneeID unassigns the task and an empty
// Description clears it.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	AssigneeID  *string
	DueDate     *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.AssigneeID == nil && u.DueDate == nil
}

// TaskFilter narrows a task listing. Empty fields match everything.
type TaskFilter struct {
	ProjectID  string
	AssigneeID string
	Status     TaskStatus
	Priority   TaskPriority
}

// Comment is a note left on a task.
type Comment struct {
	ID        string    `json:"id" db:"id"`
	Content   string    `json:"content" db:"content"`
	TaskID    string    `json:"taskId" db:"task_id"`
	AuthorID  string    `json:"authorId" db:"author_id"`
	Author    UserRef   `json:"author" db:"author"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
