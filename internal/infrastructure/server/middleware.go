package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	httpHandlers "github.com/taskmaster/planner/internal/adapters/http"
	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/ports"
)

// authMiddleware verifies the Firebase ID token and stores the caller's
// identity in the context.
func (s *Server) authMiddleware(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			user, err := verifier.VerifyIDToken(c.Request().Context(), tokenString)
			if err != nil {
				requestLogger(s.logger, c).LogSecurityEvent("invalid_token", "", c.RealIP(), map[string]interface{}{
					"error":    err.Error(),
					"endpoint": c.Request().URL.Path,
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			c.Set(httpHandlers.UserContextKey, user)
			return next(c)
		}
	}
}

var inputMessages = map[error]string{
	services.ErrMissingEmail:   "User email not found",
	services.ErrNoTasks:        "No tasks provided",
	services.ErrNoPrompt:       "No prompt provided",
	services.ErrNoImage:        "No image provided",
	services.ErrInvalidImage:   "Invalid image format",
	entities.ErrInvalidStatus:  "Invalid status",
	entities.ErrInvalidWeekday: "Invalid weekday",
	entities.ErrEmptyTitle:     "Title must not be empty",
}

// statusFor maps service errors onto a status code and client message.
func statusFor(err error) (int, string) {
	for target, msg := range inputMessages {
		if errors.Is(err, target) {
			return http.StatusBadRequest, msg
		}
	}

	switch {
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, entities.ErrTaskNotFound):
		return http.StatusNotFound, "Task not found"
	case errors.Is(err, entities.ErrNotConfigured):
		return http.StatusInternalServerError, "Backend not configured"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
