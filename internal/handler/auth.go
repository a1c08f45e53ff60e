package handler

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
	"github.com/sumire/taskflow/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth          *service.AuthService
	oauth         *service.OAuthService
	frontendURL   string
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler. oauth may be nil.
func NewAuthHandler(auth *service.AuthService, oauth *service.OAuthService, frontendURL string, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		oauth:         oauth,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User domain.PublicUser `json:"user"`
}

// Register creates an account pending email verification.
//
//	@Summary	Register a new account
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		registerRequest	true	"Account details"
//	@Success	201		{object}	service.RegisterResult
//	@Failure	400		{object}	Envelope
//	@Router		/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Register(c.Request().Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, res)
}

// Login exchanges credentials for a session token.
//
//	@Summary	Log in with email and password
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		loginRequest	true	"Credentials"
//	@Success	200		{object}	service.Session
//	@Failure	401		{object}	Envelope
//	@Failure	403		{object}	Envelope
//	@Router		/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, session)
}

// Me returns the currently authenticated user.
//
//	@Summary	Current user
//	@Tags		auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	UserResponse
//	@Failure	401	{object}	Envelope
//	@Router		/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	profile, err := h.auth.GetProfile(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, UserResponse{User: *profile})
}

// UpdateProfile changes the caller's name and/or avatar.
//
//	@Summary	Update profile
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		updateProfileRequest	true	"Fields to change"
//	@Success	200		{object}	UserResponse
//	@Failure	400		{object}	Envelope
//	@Failure	401		{object}	Envelope
//	@Router		/auth/profile [put]
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req updateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	profile, err := h.auth.UpdateProfile(c.Request().Context(), user.ID, domain.ProfileUpdate{
		Name:   req.Name,
		Avatar: req.Avatar,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, UserResponse{User: *profile})
}

// ChangePassword replaces the caller's password.
//
//	@Summary	Change password
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		changePasswordRequest	true	"Current and new password"
//	@Success	200		{object}	MessageResponse
//	@Failure	400		{object}	Envelope
//	@Failure	401		{object}	Envelope
//	@Router		/auth/change-password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.auth.ChangePassword(c.Request().Context(), user.ID, service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return err
	}
	return Message(c, http.StatusOK, "Password changed successfully")
}

// VerifyEmail consumes a verification token and logs the user in.
//
//	@Summary	Verify email address
//	@Tags		auth
//	@Produce	json
//	@Param		token	path		string	true	"Verification token"
//	@Success	200		{object}	service.Session
//	@Failure	400		{object}	Envelope
//	@Router		/auth/verify-email/{token} [get]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	session, err := h.auth.VerifyEmail(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, session)
}

// ResendVerification sends a fresh verification email.
//
//	@Summary	Resend verification email
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		emailRequest	true	"Account email"
//	@Success	200		{object}	MessageResponse
//	@Failure	400		{object}	Envelope
//	@Router		/auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.auth.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return Message(c, http.StatusOK, "If an unverified account exists for this email, a verification link has been sent")
}

// ForgotPassword starts a password reset.
//
//	@Summary	Request password reset
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		emailRequest	true	"Account email"
//	@Success	200		{object}	MessageResponse
//	@Failure	400		{object}	Envelope
//	@Router		/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return Message(c, http.StatusOK, "If an account exists with this email, a password reset link has been sent")
}

// ResetPassword sets a new password using a reset token.
//
//	@Summary	Reset password
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		resetPasswordRequest	true	"Reset token and new password"
//	@Success	200		{object}	MessageResponse
//	@Failure	400		{object}	Envelope
//	@Router		/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}
	return Message(c, http.StatusOK, "Password reset successfully")
}

// OAuthRedirect redirects the user to the provider's consent page.
//
//	@Summary	Start OAuth login
//	@Tags		auth
//	@Param		provider	path	string	true	"google or github"
//	@Success	307
//	@Router		/auth/{provider} [get]
func (h *AuthHandler) OAuthRedirect(provider domain.AuthProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		state, err := generateState()
		if err != nil {
			return err
		}

		target, err := h.oauth.AuthURL(provider, state)
		if err != nil {
			return err
		}

		c.SetCookie(&http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/auth",
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int((10 * time.Minute).Seconds()),
		})
		return c.Redirect(http.StatusTemporaryRedirect, target)
	}
}

// OAuthCallback completes an OAuth login and hands the session token to
// the frontend.
//
//	@Summary	OAuth callback
//	@Tags		auth
//	@Param		provider	path	string	true	"google or github"
//	@Param		code		query	string	true	"Authorization code"
//	@Param		state		query	string	true	"State"
//	@Success	307
//	@Router		/auth/{provider}/callback [get]
func (h *AuthHandler) OAuthCallback(provider domain.AuthProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := logging.FromContext(ctx)

		c.SetCookie(&http.Cookie{
			Name:     oauthStateCookie,
			Path:     "/auth",
			HttpOnly: true,
			Secure:   h.secureCookies,
			MaxAge:   -1,
		})

		if err := validateOAuthState(c); err != nil {
			log.Warn("oauth state rejected", "provider", provider, "error", err)
			return h.redirectToFrontend(c, url.Values{"error": {"oauth_failed"}})
		}

		code := c.QueryParam("code")
		if code == "" {
			log.Warn("oauth callback without code", "provider", provider, "error", c.QueryParam("error"))
			return h.redirectToFrontend(c, url.Values{"error": {"oauth_failed"}})
		}

		session, err := h.oauth.Callback(ctx, provider, code)
		if err != nil {
			log.Error("oauth login failed", "provider", provider, "error", err)
			return h.redirectToFrontend(c, url.Values{"error": {"oauth_failed"}})
		}

		return h.redirectToFrontend(c, url.Values{"token": {session.Token}})
	}
}

func (h *AuthHandler) redirectToFrontend(c echo.Context, query url.Values) error {
	return c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/auth/callback?"+query.Encode())
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validateOAuthState(c echo.Context) error {
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil {
		return errors.New("missing oauth_state cookie")
	}

	queryState := c.QueryParam("state")
	if queryState == "" || queryState != cookie.Value {
		return errors.New("state mismatch")
	}
	return nil
}
