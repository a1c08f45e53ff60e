package domain

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuthProvider identifies how an account signs in.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

// IsOAuth reports whether the provider is an external identity provider.
func (p AuthProvider) IsOAuth() bool {
	return p == AuthProviderGoogle || p == AuthProviderGitHub
}

// Role is the authorization level of a user.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleMember:
		return r, nil
	default:
		return "", &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
	}
}

// User is the full stored account record. It must never be serialized to
// clients; use Public for that.
type User struct {
	ID                      string       `db:"id"`
	Email                   string       `db:"email"`
	Name                    string       `db:"name"`
	Avatar                  *string      `db:"avatar"`
	PasswordHash            *string      `db:"password_hash"`
	Provider                AuthProvider `db:"provider"`
	ProviderID              *string      `db:"provider_id"`
	Role                    Role         `db:"role"`
	EmailVerified           bool         `db:"email_verified"`
	VerificationToken       *string      `db:"verification_token"`
	VerificationTokenExpiry *time.Time   `db:"verification_token_expiry"`
	ResetPasswordToken      *string      `db:"reset_password_token"`
	ResetPasswordExpiry     *time.Time   `db:"reset_password_expiry"`
	CreatedAt               time.Time    `db:"created_at"`
	UpdatedAt               time.Time    `db:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Public returns the client-safe projection of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Avatar:        u.Avatar,
		Role:          u.Role,
		Provider:      u.Provider,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// PublicUser is the subset of a User that may be returned to clients.
type PublicUser struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	Avatar        *string      `json:"avatar,omitempty"`
	Role          Role         `json:"role"`
	Provider      AuthProvider `json:"provider"`
	EmailVerified bool         `json:"emailVerified"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// ProfileUpdate is a partial profile change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string
	Avatar *string
}

// IsEmpty reports whether the update carries no changes.
func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == nil && p.Avatar == nil
}

// NewID returns a new lexicographically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}
