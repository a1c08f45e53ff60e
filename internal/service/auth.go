package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
)

// UserStore defines the user data access interface consumed by AuthService.
type UserStore interface {
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*domain.User, error)
	UpsertOAuth(ctx context.Context, user domain.User) (*domain.User, error)
}

// Mailer delivers account emails. Failures are logged by the caller and
// never fail the operation that triggered them.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendWelcome(ctx context.Context, to, name string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// AuthConfig holds token lifetimes for single-use tokens.
type AuthConfig struct {
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	MailTimeout          time.Duration
}

// AuthService handles identity state transitions.
type AuthService struct {
	users    UserStore
	tokens   *TokenIssuer
	hasher   PasswordHasher
	mailer   Mailer
	cfg      AuthConfig
	validate *validator.Validate
	now      func() time.Time

	// dummyHash is compared against when no stored hash exists so that
	// unknown accounts cost the same as wrong passwords.
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens *TokenIssuer, hasher PasswordHasher, mailer Mailer, cfg AuthConfig) *AuthService {
	if cfg.VerificationTokenTTL <= 0 {
		cfg.VerificationTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}

	dummy, _ := hasher.Hash("taskflow-placeholder-password")

	return &AuthService{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		mailer:    mailer,
		cfg:       cfg,
		validate:  validator.New(),
		now:       time.Now,
		dummyHash: dummy,
	}
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// RegisterResult is returned by Register. No session is issued until the
// email address is verified.
type RegisterResult struct {
	User                 domain.PublicUser `json:"user"`
	RequiresVerification bool              `json:"requiresVerification"`
}

// Session is an authenticated user plus their bearer token.
type Session struct {
	User  domain.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified local account and sends the verification
// email. Email delivery failure does not fail registration.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "is required"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	raw, fingerprint, err := NewSingleUseToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.VerificationTokenTTL)

	user, err := s.users.Create(ctx, domain.User{
		ID:                      domain.NewID(),
		Email:                   email,
		Name:                    name,
		PasswordHash:            &hash,
		Provider:                domain.AuthProviderLocal,
		Role:                    domain.RoleMember,
		EmailVerified:           false,
		VerificationToken:       &fingerprint,
		VerificationTokenExpiry: &expiresAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.deliver(ctx, "verification", user.Email, func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, user.Email, user.Name, raw)
	})

	logging.FromContext(ctx).Info("user registered", "user_id", user.ID)

	return &RegisterResult{User: user.Public(), RequiresVerification: true}, nil
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password are indistinguishable. The verification gate is checked
// only after the password matched.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &domain.ValidationError{Field: "password", Message: "is required"}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.burnCompare(password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if !user.HasPassword() {
		s.burnCompare(password)
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Compare(*user.PasswordHash, password)
	if err != nil {
		logging.FromContext(ctx).Error("stored password hash unusable", "user_id", user.ID, "error", err)
		return nil, domain.ErrInvalidCredentials
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.EmailVerified && !user.Provider.IsOAuth() {
		return nil, domain.ErrEmailNotVerified
	}

	session, err := s.newSession(user)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("user logged in", "user_id", user.ID)
	return session, nil
}

// GetProfile returns the public projection of an already authenticated user.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	public := user.Public()
	return &public, nil
}

// UpdateProfile changes name and/or avatar. Email is immutable here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.PublicUser, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, &domain.ValidationError{Field: "name", Message: "must not be empty"}
		}
		upd.Name = &name
	}
	if upd.Avatar != nil {
		avatar := strings.TrimSpace(*upd.Avatar)
		if err := s.validate.Var(avatar, "omitempty,url,max=2048"); err != nil {
			return nil, &domain.ValidationError{Field: "avatar", Message: "must be a valid URL"}
		}
		upd.Avatar = &avatar
	}

	if upd.IsEmpty() {
		return s.GetProfile(ctx, userID)
	}

	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	public := user.Public()
	return &public, nil
}

// VerifyEmail consumes a verification token, sends the welcome email and
// logs the user in. Unknown and expired tokens fail identically.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	user, err := s.users.ConsumeVerificationToken(ctx, FingerprintToken(token), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("verify email: %w", err)
	}

	s.deliver(ctx, "welcome", user.Email, func(ctx context.Context) error {
		return s.mailer.SendWelcome(ctx, user.Email, user.Name)
	})

	logging.FromContext(ctx).Info("email verified", "user_id", user.ID)
	return s.newSession(user)
}

// ResendVerification issues a fresh verification token for an unverified
// local account. It reports success whether or not the account exists.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resend verification: %w", err)
	}
	if user.EmailVerified || user.Provider.IsOAuth() {
		return nil
	}

	raw, fingerprint, err := NewSingleUseToken()
	if err != nil {
		return err
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, fingerprint, s.now().Add(s.cfg.VerificationTokenTTL)); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}

	s.deliver(ctx, "verification", user.Email, func(ctx context.Context) error {
		return s.mailer.SendVerification(ctx, user.Email, user.Name, raw)
	})
	return nil
}

// ChangePasswordInput is the payload of ChangePassword.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if in.CurrentPassword == "" {
		return &domain.ValidationError{Field: "currentPassword", Message: "is required"}
	}
	if err := validatePassword("newPassword", in.NewPassword); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("change password: %w", err)
	}
	if !user.HasPassword() {
		return domain.ErrNoPasswordSet
	}

	ok, err := s.hasher.Compare(*user.PasswordHash, in.CurrentPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return domain.ErrIncorrectPassword
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	logging.FromContext(ctx).Info("password changed", "user_id", user.ID)
	return nil
}

// RequestPasswordReset stores a reset token and emails it when the account
// exists. The caller sees the same result either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logging.FromContext(ctx).Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("request password reset: %w", err)
	}

	raw, fingerprint, err := NewSingleUseToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, fingerprint, s.now().Add(s.cfg.ResetTokenTTL)); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}

	s.deliver(ctx, "password_reset", user.Email, func(ctx context.Context) error {
		return s.mailer.SendPasswordReset(ctx, user.Email, user.Name, raw)
	})

	logging.FromContext(ctx).Info("password reset requested", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword("password", newPassword); err != nil {
		return err
	}
	if token == "" {
		return domain.ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user, err := s.users.ConsumeResetToken(ctx, FingerprintToken(token), hash, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("reset password: %w", err)
	}

	logging.FromContext(ctx).Info("password reset completed", "user_id", user.ID)
	return nil
}

// Authenticate resolves a bearer token to the calling user. It is the only
// way request handlers learn who is calling.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*domain.PublicUser, error) {
	if rawToken == "" {
		return nil, domain.ErrNoToken
	}

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	public := user.Public()
	return &public, nil
}

func (s *AuthService) newSession(user *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: user.Public(), Token: token}, nil
}

// deliver runs an email send with its own timeout, detached from request
// cancellation. Errors are logged and dropped.
func (s *AuthService) deliver(ctx context.Context, kind, to string, send func(context.Context) error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MailTimeout)
	defer cancel()

	if err := send(sendCtx); err != nil {
		logging.FromContext(ctx).Error("email delivery failed", "kind", kind, "to", to, "error", err)
	}
}

func (s *AuthService) burnCompare(password string) {
	if s.dummyHash != "" {
		_, _ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *AuthService) validateEmail(email string) error {
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return &domain.ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	return nil
}

func validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &domain.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	if len(password) > MaxPasswordBytes {
		return &domain.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes),
		}
	}
	return nil
}
