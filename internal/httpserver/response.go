package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/detection_backend/internal/auth"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
	"github.com/Skotchmaster/detection_backend/pkg/transport"
)

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, transport.Response{Success: true, Data: data})
}

// statusFor maps a façade error onto the status and message a client sees.
func statusFor(err error) (int, string) {
	switch auth.Public(err) {
	case auth.OutcomeInvalidInput:
		return http.StatusBadRequest, "invalid input"
	case auth.OutcomeLoginFailed:
		return http.StatusUnauthorized, "invalid username or password"
	case auth.OutcomeUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case auth.OutcomeForbidden:
		return http.StatusForbidden, "forbidden"
	case auth.OutcomeConflict:
		return http.StatusConflict, "user already exist"
	case auth.OutcomeNotFound:
		return http.StatusNotFound, "user not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorHandler renders every error in the response envelope. Non-HTTP errors
// become a 500 without leaking their text.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = fmt.Sprint(m)
		}
	} else {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, transport.Response{Success: false, Message: msg})
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("write_error_response_failed", "error", werr)
	}
}
