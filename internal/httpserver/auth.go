package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/detection_backend/internal/auth"
	authmw "github.com/Skotchmaster/detection_backend/internal/middleware/auth"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
	"github.com/Skotchmaster/detection_backend/pkg/transport"
)

type AuthHTTP struct {
	Svc *auth.Service
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", http.StatusBadRequest, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password, c.RealIP())
	if err != nil {
		code, msg := statusFor(err)
		l.Warn("login_failed", "status", code, "reason", auth.ReasonOf(err).String())
		return echo.NewHTTPError(code, msg)
	}

	return ok(c, http.StatusOK, transport.LoginResult{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User: transport.UserInfo{
			Username: res.Username,
			Role:     string(res.Role),
			Active:   true,
		},
	})
}

// Logout always answers 200 so clients can drop their token unconditionally.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.Svc.Logout(ctx, authmw.BearerToken(c)); err != nil {
		logging.FromContext(ctx).Error("logout_failed", "handler", "auth.logout", "error", err)
	}
	return c.JSON(http.StatusOK, transport.Response{Success: true, Message: "logged out"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	claims, found := authmw.ClaimsFrom(c)
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return ok(c, http.StatusOK, transport.MeResult{
		Username:  claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.change_password")

	claims, found := authmw.ClaimsFrom(c)
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_failed", "status", http.StatusBadRequest, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.ChangePassword(ctx, claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		code, msg := statusFor(err)
		if auth.Public(err) == auth.OutcomeLoginFailed {
			code, msg = http.StatusUnauthorized, "current password is incorrect"
		}
		l.Warn("change_password_failed", "status", code, "reason", auth.ReasonOf(err).String())
		return echo.NewHTTPError(code, msg)
	}

	return c.JSON(http.StatusOK, transport.Response{Success: true, Message: "password changed"})
}
