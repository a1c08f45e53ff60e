package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/logging"
	"github.com/sumire/taskflow/internal/service"
)

const (
	contextKeyUser = "user"
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*domain.PublicUser, error)
}

// RequestLogger attaches a request-scoped logger to the request context and
// logs each HTTP request with structured fields.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			// The route template, not the raw path: some paths carry tokens.
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			log := base.With(
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", path,
			)
			c.SetRequest(req.WithContext(logging.WithContext(req.Context(), log)))

			err := next(c)
			if err != nil {
				// Resolve the status before logging; the error handler
				// would otherwise run after this line.
				c.Error(err)
			}

			log.Info("http request",
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
			)
			return nil
		}
	}
}

// JWTAuth validates the Bearer token and stores the resolved user in the
// echo context.
func JWTAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return domain.ErrNoToken
			}

			user, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}

			c.Set(contextKeyUser, user)
			return next(c)
		}
	}
}

// RequireRoles allows the request only when the authenticated caller has
// one of the given roles. It must be mounted after JWTAuth.
func RequireRoles(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, _ := CurrentUser(c)
			if err := service.Authorize(user, roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// CurrentUser returns the user resolved by JWTAuth.
func CurrentUser(c echo.Context) (*domain.PublicUser, bool) {
	user, ok := c.Get(contextKeyUser).(*domain.PublicUser)
	return user, ok && user != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
