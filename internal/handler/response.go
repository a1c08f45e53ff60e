package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MessageResponse is the body of operations that only confirm success.
type MessageResponse struct {
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// Message writes a {"data": {"message": ...}} response.
func Message(c echo.Context, status int, msg string) error {
	return JSON(c, status, MessageResponse{Message: msg})
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)

	log := logging.FromContext(c.Request().Context())
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("unhandled error", "error", err)
	case status == http.StatusUnauthorized:
		// The client only sees a 401; keep the precise reason in the logs.
		log.Info("request rejected", "status", status, "reason", err.Error())
	}

	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		log.Error("failed to send error response", "error", jsonErr)
	}
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is matched in order with errors.Is.
var errorMappings = []errorMapping{
	{domain.ErrDuplicateEmail, http.StatusBadRequest, "duplicate_email", "User with this email already exists"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{domain.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified", "Please verify your email before logging in"},
	{domain.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid_or_expired_token", "Invalid or expired token"},
	{domain.ErrIncorrectPassword, http.StatusUnauthorized, "incorrect_password", "Current password is incorrect"},
	{domain.ErrNoPasswordSet, http.StatusBadRequest, "no_password_set", "This account signs in with an external provider and has no password"},
	{domain.ErrNoToken, http.StatusUnauthorized, "no_token", "Authentication is required"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "Session has expired"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid token"},
	{domain.ErrUserNotFound, http.StatusUnauthorized, "user_not_found", "User no longer exists"},
	{domain.ErrNotAuthenticated, http.StatusUnauthorized, "not_authenticated", "Not authenticated"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden", "You do not have permission to perform this action"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "The request body is invalid"},
	{domain.ErrConflict, http.StatusConflict, "conflict", "The resource already exists or conflicts with current state"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later"},
}

func mapError(err error) (int, APIError) {
	// Handle echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		code := "http_error"
		switch echoErr.Code {
		case http.StatusNotFound:
			code = "not_found"
		case http.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case http.StatusBadRequest:
			code = "invalid_input"
		}
		return echoErr.Code, APIError{Code: code, Message: msg}
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{
				{Field: validationErr.Field, Message: validationErr.Message},
			},
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, APIError{Code: m.code, Message: m.message}
		}
	}

	return http.StatusInternalServerError, APIError{
		Code:    "internal_error",
		Message: "An unexpected error occurred",
	}
}
