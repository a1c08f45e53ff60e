package domain

import (
	"fmt"
	"time"
)

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "ACTIVE"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusOnHold    ProjectStatus = "ON_HOLD"
	ProjectStatusArchived  ProjectStatus = "ARCHIVED"
)

// ParseProjectStatus validates a project status name.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch st := ProjectStatus(s); st {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusArchived:
		return st, nil
	default:
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown project status %q", s)}
	}
}

// UserRef is the short form of a user embedded in other resources.
type UserRef struct {
	ID     string  `json:"id" db:"id"`
	Name   string  `json:"name" db:"name"`
	Email  string  `json:"email" db:"email"`
	Avatar *string `json:"avatar,omitempty" db:"avatar"`
}

// ProjectRef is the short form of a project embedded in tasks.
type ProjectRef struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Project represents a project that contains tasks.
type Project struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description *string       `json:"description,omitempty" db:"description"`
	Status      ProjectStatus `json:"status" db:"status"`
	OwnerID     string        `json:"ownerId" db:"owner_id"`
	Owner       UserRef       `json:"owner" db:"owner"`
	TaskCount   int           `json:"taskCount" db:"task_count"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`

	// Tasks is only loaded for single-project reads.
	Tasks []Task `json:"tasks,omitempty" db:"-"`
}

// IsOwnedBy reports whether the user owns the project.
func (p Project) IsOwnedBy(userID string) bool {
	return p.OwnerID == userID
}

// ProjectUpdate carries the optional fields of a project update. Nil fields
// are left unchanged; an empty Description clears it.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *ProjectStatus
}

// IsEmpty reports whether the update changes nothing.
func (u ProjectUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil
}
