package auth

import (
	"context"
	"net/http"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	authsvc "github.com/Skotchmaster/detection_backend/internal/auth"
	"github.com/Skotchmaster/detection_backend/internal/tokens"
	"github.com/Skotchmaster/detection_backend/internal/users"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
)

const (
	CtxClaims = "claims"
	CtxUserID = "user_id"
	CtxRole   = "role"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (tokens.Claims, error)
	Authorize(claims tokens.Claims, required users.Role) error
}

// RequireAuth validates the bearer token through a and stores the claims
// under CtxClaims. Every failure is a 401 with the same message; the reason
// is only logged.
func RequireAuth(a Authenticator) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  CtxClaims,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, raw string) (any, error) {
			claims, err := a.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return nil, err
			}
			c.Set(CtxUserID, claims.Subject)
			c.Set(CtxRole, claims.Role)
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			l := logging.FromContext(c.Request().Context()).With("middleware", "require_auth")
			reason := "missing token"
			if r := authsvc.ReasonOf(err); r != 0 {
				reason = r.String()
			}
			l.Warn("unauthorized", "status", http.StatusUnauthorized, "reason", reason)
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		},
	})
}

// RequireRole must run after RequireAuth.
func RequireRole(a Authenticator, required users.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			if err := a.Authorize(claims, required); err != nil {
				logging.FromContext(c.Request().Context()).Warn("forbidden",
					"status", http.StatusForbidden,
					"username", claims.Subject,
					"role", claims.Role,
					"required", string(required),
				)
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

func ClaimsFrom(c echo.Context) (tokens.Claims, bool) {
	claims, ok := c.Get(CtxClaims).(tokens.Claims)
	return claims, ok
}

// BearerToken returns the raw bearer token of the request, or "".
func BearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
