package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/lost-and-found/internal/logger"
	"github.com/iliyamo/lost-and-found/internal/service"
)

// requestTimeout bounds the store calls of a single request.
const requestTimeout = 5 * time.Second

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusOf maps a service error code to an HTTP status.
func statusOf(code string) int {
	switch code {
	case service.CodePermissionDenied, service.CodeUserDeleted, service.CodeUserBanned:
		return http.StatusForbidden
	case service.CodeUserNotFound, service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeUserNotDeleted, service.CodeConflict:
		return http.StatusConflict
	case service.CodeInvalidDuration, service.CodeInvalidInput:
		return http.StatusBadRequest
	case service.CodeInvalidLogin:
		return http.StatusUnauthorized
	case service.CodeNoAdmin:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error body. Typed service errors keep their
// code and message; anything else is logged and reported as a 500 with
// fallback as the message.
func fail(c echo.Context, err error, fallback string) error {
	var se *service.SendError
	if errors.As(err, &se) {
		logger.FromContext(c).Error("send failed", zap.String("conversation_id", se.ConversationID), zap.Error(se.Err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to send message", "text": se.Text})
	}
	var e *service.Error
	if errors.As(err, &e) {
		status := statusOf(e.Code)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c).Error(fallback, zap.String("code", e.Code), zap.Error(err))
		}
		return c.JSON(status, echo.Map{"error": e.Message, "code": e.Code})
	}
	logger.FromContext(c).Error(fallback, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": fallback})
}

// itemID parses the :id path parameter of item routes.
func itemID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryInt reads a positive integer query parameter, returning def when it
// is missing or malformed.
func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}
