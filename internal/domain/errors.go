package domain

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
	ErrRateLimited  = errors.New("rate limited")
)

// Identity errors returned by the auth service.
var (
	ErrDuplicateEmail        = errors.New("user with this email already exists")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrIncorrectPassword     = errors.New("current password is incorrect")
	ErrNoPasswordSet         = errors.New("account has no password set")
)

// Request gate errors. All of them surface as 401 but stay distinct
// internally so logs show why a request was rejected.
var (
	ErrNoToken          = errors.New("no bearer token provided")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
