package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/taskmaster/planner/docs"
	httpHandlers "github.com/taskmaster/planner/internal/adapters/http"
	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/ports"
)

// Dependencies are the adapters the server is assembled from.
type Dependencies struct {
	Tasks     ports.TaskRepository
	Verifier  ports.TokenVerifier
	Generator ports.Generator
	// Metrics may be nil when metrics are disabled.
	Metrics *metrics.Metrics
}

// Server represents the HTTP server
type Server struct {
	echo        *echo.Echo
	config      *config.Config
	logger      *logger.Logger
	taskService *services.TaskService
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// NewValidator returns a validator that knows the task enums.
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return entities.TaskStatus(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return entities.Weekday(fl.Field().String()).IsValid()
	})
	return &CustomValidator{validator: v}
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, appLogger *logger.Logger) (*Server, error) {
	if deps.Tasks == nil {
		return nil, errors.New("task repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	e := echo.New()

	// Set custom validator
	e.Validator = NewValidator()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	// Initialize services
	taskService := services.NewTaskService(deps.Tasks, cfg.Storage.Backend, deps.Metrics, loc, appLogger)
	assistService := services.NewAssistService(deps.Generator, deps.Metrics, loc, appLogger)

	// Initialize handlers
	taskHandler := httpHandlers.NewTaskHandler(taskService, appLogger)
	assistHandler := httpHandlers.NewAssistHandler(assistService, cfg.Server.ParseImageTimeout, appLogger)
	versionHandler := httpHandlers.NewVersionHandler(cfg.Build)

	server := &Server{
		echo:        e,
		config:      cfg,
		logger:      appLogger,
		taskService: taskService,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup metrics
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		server.setupMetrics(deps.Metrics)
	}

	// Setup routes
	server.setupRoutes(taskHandler, assistHandler, versionHandler, deps.Verifier)

	return server, nil
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Logger middleware
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			s.logger.LogHTTPRequest(
				values.Method,
				values.URI,
				values.UserAgent,
				values.RemoteIP,
				values.Status,
				float64(values.Latency.Nanoseconds())/1000000,
				values.Error,
			)
			return nil
		},
	}))

	// CORS middleware
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.POST, echo.DELETE},
	}))

	// Rate limiting middleware
	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{Rate: rate.Limit(s.config.Security.RateLimitRequests), Burst: s.config.Security.RateLimitRequests, ExpiresIn: s.config.Security.RateLimitWindow},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusForbidden, httpHandlers.ErrorResponse{Error: "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, httpHandlers.ErrorResponse{Error: "rate limit exceeded"})
		},
	}))

	// Security headers; the swagger UI needs inline scripts
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/docs")
		},
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Photos arrive as base64 data URLs
	s.echo.Use(middleware.BodyLimit(s.config.Server.BodyLimit))

	// Timeout middleware; image parsing carries its own budget
	s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/parse-image"
		},
		Timeout: s.config.Server.RequestTimeout,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(taskHandler *httpHandlers.TaskHandler, assistHandler *httpHandlers.AssistHandler, versionHandler *httpHandlers.VersionHandler, verifier ports.TokenVerifier) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// Swagger documentation
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	api := s.echo.Group("/api")
	auth := s.authMiddleware(verifier)

	// Public
	api.GET("/version", versionHandler.Version)

	// Task routes (authenticated)
	taskGroup := api.Group("/tasks", auth)
	taskGroup.GET("", taskHandler.ListTasks)
	taskGroup.POST("", taskHandler.CreateTask)
	taskGroup.GET("/:id", taskHandler.GetTask)
	taskGroup.PUT("/:id", taskHandler.UpdateTask)
	taskGroup.DELETE("/:id", taskHandler.DeleteTask)

	// AI assist routes (authenticated)
	api.POST("/ai-edit-tasks", assistHandler.EditTasks, auth)
	api.POST("/parse-image", assistHandler.ParseImage, auth)
}

// setupMetrics installs the request collectors and the scrape endpoint
func (s *Server) setupMetrics(m *metrics.Metrics) {
	s.echo.Use(m.Middleware())
	s.echo.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessCheck(c echo.Context) error {
	if err := s.taskService.Ready(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "backend_not_ready",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"backend": s.config.Storage.Backend,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ServeHTTP lets the server be driven directly, e.g. by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout

	s.logger.Infow("Starting server", "address", address, "backend", s.config.Storage.Backend)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
// requestLogger tags log lines with the request id and, once authenticated,
// the caller's uid.
func requestLogger(base *logger.Logger, c echo.Context) *logger.Logger {
	l := base
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		l = l.WithRequestID(id)
	}
	if user, ok := c.Get(httpHandlers.UserContextKey).(*entities.User); ok && user != nil {
		l = l.WithUserID(user.UID)
	}
	return l
}

func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code int
			msg  string
		)

		var he *echo.HTTPError
		var ve validator.ValidationErrors
		switch {
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		case errors.As(err, &ve):
			code = http.StatusBadRequest
			msg = ve.Error()
		default:
			code, msg = statusFor(err)
		}

		if code >= http.StatusInternalServerError {
			requestLogger(logger, c).Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == echo.HEAD {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, httpHandlers.ErrorResponse{Error: msg, Success: false})
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
