package service

import (
	"context"
	"fmt"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
)

// UserDirectory is the store surface needed for user administration.
type UserDirectory interface {
	List(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// UserService exposes read and privileged write operations over users.
type UserService struct {
	users UserDirectory
}

// NewUserService creates a new UserService.
func NewUserService(users UserDirectory) *UserService {
	return &UserService{users: users}
}

// List returns every user, newest first.
func (s *UserService) List(ctx context.Context) ([]domain.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PublicUser, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.PublicUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	public := user.Public()
	return &public, nil
}

// SetRole changes the role of a user.
func (s *UserService) SetRole(ctx context.Context, actor domain.PublicUser, id string, role domain.Role) (*domain.PublicUser, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if actor.ID == id && role != domain.RoleAdmin {
		return nil, &domain.ValidationError{Field: "role", Message: "cannot remove your own admin role"}
	}

	user, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("user role changed", "user_id", id, "role", role, "by", actor.ID)
	public := user.Public()
	return &public, nil
}

// Delete removes a user account. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor domain.PublicUser, id string) error {
	if actor.ID == id {
		return &domain.ValidationError{Field: "id", Message: "cannot delete your own account"}
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	logging.FromContext(ctx).Info("user deleted", "user_id", id, "by", actor.ID)
	return nil
}
