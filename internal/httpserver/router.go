package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/detection_backend/internal/auth"
	"github.com/Skotchmaster/detection_backend/internal/detections"
	"github.com/Skotchmaster/detection_backend/internal/events"
	"github.com/Skotchmaster/detection_backend/internal/metrics"
	authmw "github.com/Skotchmaster/detection_backend/internal/middleware/auth"
	"github.com/Skotchmaster/detection_backend/internal/users"
	loggingmw "github.com/Skotchmaster/detection_backend/pkg/middleware/logging"
)

type Deps struct {
	Auth       *auth.Service
	Detections *detections.Store
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error

	AllowOrigins []string
}

func common(d *Deps) []echo.MiddlewareFunc {
	origins := d.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return []echo.MiddlewareFunc{
		ecM.Recover(),
		ecM.RequestID(),
		loggingmw.RequestLoggerWithConfig(loggingmw.Config{
			Base:         d.Logger,
			SkipPrefixes: []string{"/health", "/metrics"},
		}),
		d.Metrics.Middleware(),
		ecM.SecureWithConfig(ecM.SecureConfig{
			XSSProtection:         "1; mode=block",
			ContentTypeNosniff:    "nosniff",
			XFrameOptions:         "DENY",
			HSTSMaxAge:            31536000,
			ContentSecurityPolicy: "default-src 'self'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}),
		ecM.CORSWithConfig(ecM.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		}),
		ecM.BodyLimit("1M"),
	}
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler
	for _, m := range common(d) {
		e.Use(m)
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Ready(ctx); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready")
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authHTTP := &AuthHTTP{Svc: d.Auth}
	usersHTTP := &UsersHTTP{Svc: d.Auth}
	detHTTP := &DetectionsHTTP{Store: d.Detections, Events: d.Events}

	api := e.Group("/api")
	api.POST("/login", authHTTP.Login)
	api.POST("/logout", authHTTP.Logout)

	private := api.Group("", authmw.RequireAuth(d.Auth))
	private.GET("/me", authHTTP.Me)
	private.POST("/password", authHTTP.ChangePassword)

	viewerOnly := authmw.RequireRole(d.Auth, users.RoleViewer)
	adminOnly := authmw.RequireRole(d.Auth, users.RoleAdmin)

	if d.Detections != nil {
		private.GET("/detections", detHTTP.List, viewerOnly)
		private.GET("/history/:g_id", detHTTP.History, viewerOnly)
		private.GET("/stats", detHTTP.Stats, viewerOnly)
		private.GET("/export", detHTTP.Export, viewerOnly)
		private.POST("/detection", detHTTP.Record, adminOnly)
	}

	private.GET("/users", usersHTTP.List, adminOnly)
	private.POST("/users", usersHTTP.Create, adminOnly)
	private.POST("/users/:username/deactivate", usersHTTP.Deactivate, adminOnly)
}
