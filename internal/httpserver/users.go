package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/detection_backend/internal/auth"
	"github.com/Skotchmaster/detection_backend/internal/users"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
	"github.com/Skotchmaster/detection_backend/pkg/transport"
)

type UsersHTTP struct {
	Svc *auth.Service
}

func toUserInfo(u users.User) transport.UserInfo {
	return transport.UserInfo{Username: u.Username, Role: string(u.Role), Active: u.Active}
}

func (h *UsersHTTP) List(c echo.Context) error {
	list := h.Svc.ListUsers()
	out := make([]transport.UserInfo, 0, len(list))
	for _, u := range list {
		out = append(out, toUserInfo(u))
	}
	return ok(c, http.StatusOK, out)
}

func (h *UsersHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.create")

	var req transport.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_user_failed", "status", http.StatusBadRequest, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.Svc.CreateUser(ctx, req.Username, req.Password, users.Role(req.Role))
	if err != nil {
		code, msg := statusFor(err)
		l.Warn("create_user_failed", "status", code, "reason", auth.ReasonOf(err).String())
		return echo.NewHTTPError(code, msg)
	}

	return ok(c, http.StatusCreated, toUserInfo(u))
}

func (h *UsersHTTP) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.deactivate")

	username := c.Param("username")
	if err := h.Svc.DeactivateUser(ctx, username); err != nil {
		code, msg := statusFor(err)
		l.Warn("deactivate_user_failed", "status", code, "reason", auth.ReasonOf(err).String())
		return echo.NewHTTPError(code, msg)
	}

	return c.JSON(http.StatusOK, transport.Response{Success: true, Message: "user deactivated"})
}
