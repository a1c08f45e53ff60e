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

const userColumns = `id, email, name, avatar, password_hash, provider, provider_id, role,
	email_verified, verification_token, verification_token_expiry,
	reset_password_token, reset_password_expiry, created_at, updated_at`

// UserRepository handles user data access operations. Queries are written
// with ? placeholders and rebound for the connected driver.
type UserRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

func (r *UserRepository) timestamp() time.Time {
	return r.now().UTC()
}

func (r *UserRepository) getUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query), args...).StructScan(&user); err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

// Ping verifies the database connection is alive.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts a new user. A duplicate email yields domain.ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (*domain.User, error) {
	now := r.timestamp()
	if user.ID == "" {
		user.ID = domain.NewID()
	}

	created, err := r.getUser(ctx,
		`INSERT INTO users (id, email, name, avatar, password_hash, provider, provider_id, role,
		                    email_verified, verification_token, verification_token_expiry,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+userColumns,
		user.ID, user.Email, user.Name, user.Avatar, user.PasswordHash, string(user.Provider), user.ProviderID,
		string(user.Role), user.EmailVerified, user.VerificationToken, utcPtr(user.VerificationTokenExpiry),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id %s: %w", id, err)
	}
	return user, nil
}

// FindByEmail retrieves a user by their normalized email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// List returns all users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfile writes only the fields present in upd.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Avatar != nil {
		sets = append(sets, "avatar = ?")
		args = append(args, nullIfEmpty(*upd.Avatar))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.timestamp(), id)

	user, err := r.getUser(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+userColumns,
		args...)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile %s: %w", id, err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return execOne(ctx, r.db, "update password hash",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, r.timestamp(), id)
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	user, err := r.getUser(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ? RETURNING `+userColumns,
		string(role), r.timestamp(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update role %s: %w", id, err)
	}
	return user, nil
}

// Delete removes a user. A user who still owns projects or created tasks
// yields domain.ErrConflict.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	err := execOne(ctx, r.db, "delete user", `DELETE FROM users WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: user %s still owns projects or tasks", domain.ErrConflict, id)
	}
	return err
}

// SetVerificationToken stores a fresh verification token fingerprint.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return execOne(ctx, r.db, "set verification token",
		`UPDATE users SET verification_token = ?, verification_token_expiry = ?, updated_at = ? WHERE id = ?`,
		tokenHash, expiresAt.UTC(), r.timestamp(), id)
}

// SetResetToken stores a fresh password reset token fingerprint.
func (r *UserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return execOne(ctx, r.db, "set reset token",
		`UPDATE users SET reset_password_token = ?, reset_password_expiry = ?, updated_at = ? WHERE id = ?`,
		tokenHash, expiresAt.UTC(), r.timestamp(), id)
}

// ConsumeVerificationToken marks the owner of an unexpired verification
// token as verified and clears the token in one statement. An unknown or
// expired token yields domain.ErrNotFound.
func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	user, err := r.getUser(ctx,
		`UPDATE users
		 SET email_verified = ?, verification_token = NULL, verification_token_expiry = NULL, updated_at = ?
		 WHERE verification_token = ? AND verification_token_expiry > ?
		 RETURNING `+userColumns,
		true, r.timestamp(), tokenHash, now.UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("consume verification token: %w", err)
	}
	return user, nil
}

// ConsumeResetToken sets a new password hash for the owner of an unexpired
// reset token and clears the token in one statement. An unknown or expired
// token yields domain.ErrNotFound.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*domain.User, error) {
	user, err := r.getUser(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_password_token = NULL, reset_password_expiry = NULL, updated_at = ?
		 WHERE reset_password_token = ? AND reset_password_expiry > ?
		 RETURNING `+userColumns,
		passwordHash, r.timestamp(), tokenHash, now.UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	return user, nil
}

// UpsertOAuth creates a user on first OAuth login or refreshes the email
// and missing avatar of an existing one, keyed by provider + provider_id.
// OAuth accounts are always stored as verified.
func (r *UserRepository) UpsertOAuth(ctx context.Context, user domain.User) (*domain.User, error) {
	now := r.timestamp()
	result, err := r.getUser(ctx,
		`INSERT INTO users (id, email, name, avatar, provider, provider_id, role, email_verified,
		                    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET email = EXCLUDED.email,
		               avatar = COALESCE(users.avatar, EXCLUDED.avatar),
		               email_verified = EXCLUDED.email_verified,
		               updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		domain.NewID(), user.Email, user.Name, user.Avatar, string(user.Provider), user.ProviderID,
		string(domain.RoleMember), true, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("upsert %s user: %w", user.Provider, err)
	}
	return result, nil
}

// execOne runs a statement that must touch exactly one row; zero rows
// yields domain.ErrNotFound.
func execOne(ctx context.Context, db *sqlx.DB, op, query string, args ...any) error {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
