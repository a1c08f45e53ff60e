package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/sumire/taskflow/docs"
	"github.com/sumire/taskflow/internal/domain"
	"github.com/sumire/taskflow/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps is everything NewRouter wires together.
type RouterDeps struct {
	Logger        *slog.Logger
	Auth          *service.AuthService
	OAuth         *service.OAuthService
	Users         *service.UserService
	Projects      *service.ProjectService
	Tasks         *service.TaskService
	DB            Pinger
	FrontendURL   string
	SecureCookies bool
	AuthRateLimit RateLimitConfig

	// TrustedProxies may set X-Forwarded-For. Without any, the socket peer
	// is the client IP used for rate limiting and access logs.
	TrustedProxies []*net.IPNet
}

// NewRouter builds the echo instance serving the HTTP API.
func NewRouter(deps RouterDeps) *echo.Echo {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.IPExtractor = ipExtractor(deps.TrustedProxies)

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(deps.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{deps.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/health", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", readyz(deps.DB))
	e.GET("/swagger/*", echo.WrapHandler(httpSwagger.WrapHandler))

	requireAuth := JWTAuth(deps.Auth)
	limit := RateLimitByIP(deps.AuthRateLimit)

	authH := NewAuthHandler(deps.Auth, deps.OAuth, deps.FrontendURL, deps.SecureCookies)
	auth := e.Group("/auth")
	auth.POST("/register", authH.Register, limit)
	auth.POST("/login", authH.Login, limit)
	auth.GET("/verify-email/:token", authH.VerifyEmail)
	auth.POST("/resend-verification", authH.ResendVerification, limit)
	auth.POST("/forgot-password", authH.ForgotPassword, limit)
	auth.POST("/reset-password", authH.ResetPassword, limit)
	auth.GET("/me", authH.Me, requireAuth)
	auth.PUT("/profile", authH.UpdateProfile, requireAuth)
	auth.PUT("/change-password", authH.ChangePassword, requireAuth)

	if deps.OAuth != nil {
		for _, p := range []domain.AuthProvider{domain.AuthProviderGoogle, domain.AuthProviderGitHub} {
			if !deps.OAuth.Enabled(p) {
				continue
			}
			auth.GET("/"+string(p), authH.OAuthRedirect(p))
			auth.GET("/"+string(p)+"/callback", authH.OAuthCallback(p))
		}
	}

	usersH := NewUserHandler(deps.Users)
	users := e.Group("/users", requireAuth)
	users.GET("", usersH.List, RequireRoles(domain.RoleAdmin, domain.RoleManager))
	users.GET("/:id", usersH.Get)
	users.PUT("/:id/role", usersH.SetRole, RequireRoles(domain.RoleAdmin))
	users.DELETE("/:id", usersH.Delete, RequireRoles(domain.RoleAdmin))

	managers := RequireRoles(domain.RoleAdmin, domain.RoleManager)

	projectsH := NewProjectHandler(deps.Projects)
	projects := e.Group("/projects", requireAuth)
	projects.GET("", projectsH.List)
	projects.POST("", projectsH.Create, managers)
	projects.GET("/:id", projectsH.Get)
	projects.PUT("/:id", projectsH.Update, managers)
	projects.DELETE("/:id", projectsH.Delete, managers)

	tasksH := NewTaskHandler(deps.Tasks)
	tasks := e.Group("/tasks", requireAuth)
	tasks.GET("", tasksH.List)
	tasks.POST("", tasksH.Create)
	tasks.GET("/:id", tasksH.Get)
	tasks.PUT("/:id", tasksH.Update)
	tasks.DELETE("/:id", tasksH.Delete)
	tasks.POST("/:id/comments", tasksH.AddComment)

	return e
}

// ipExtractor never trusts client-supplied forwarding headers unless the
// request arrives from a configured proxy.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func readyz(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db == nil {
			return JSON(c, http.StatusOK, map[string]string{"status": "ready"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, Envelope{Error: &APIError{
				Code:    "not_ready",
				Message: "Database is unavailable",
			}})
		}
		return JSON(c, http.StatusOK, map[string]string{"status": "ready"})
	}
}
