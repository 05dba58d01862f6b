package http

import (
	"errors"
	"net/http"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"

	"github.com/labstack/echo/v4"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrTransitionNotAllowed),
		errors.Is(err, coordinator.ErrAlreadyBroadcast),
		errors.Is(err, coordinator.ErrNothingToResend),
		errors.Is(err, coordinator.ErrCoordinatorClosed):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(ctx echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return ctx.JSON(code, Error{Code: code, Message: msg})
}

func badRequest(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusBadRequest, Error{Code: http.StatusBadRequest, Message: msg})
}

// HTTPErrorHandler renders echo's own errors (unknown route, bad method, binder
// failures) with the same body as handler errors.
func HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = ctx.JSON(he.Code, Error{Code: he.Code, Message: msg})
		return
	}
	_ = fail(ctx, err)
}
