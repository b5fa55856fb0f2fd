package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
)

// UserContextKey is the echo context key holding the authenticated *entities.User.
const UserContextKey = "user"

// TaskHandler handles task-related requests
type TaskHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *services.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger.WithComponent("task_handler"),
	}
}

// ListTasks godoc
// @Summary List tasks
// @Description List the caller's tasks, most recently edited first. debug=1 adds a summary.
// @Tags tasks
// @Produce json
// @Param debug query string false "Set to 1 to include a debug summary"
// @Success 200 {object} TaskListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Security BearerAuth
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c echo.Context) error {
	owner := userFromContext(c)

	tasks, err := h.taskService.ListTasks(c.Request().Context(), owner)
	if err != nil {
		return err
	}

	response := TaskListResponse{Tasks: tasks, Success: true}
	if c.QueryParam("debug") == "1" {
		summary := h.taskService.Summarize(owner, tasks)
		response.Debug = &summary
	}
	return c.JSON(http.StatusOK, response)
}

// GetTask godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	task, err := h.taskService.GetTask(c.Request().Context(), userFromContext(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TaskResponse{Task: task, Success: true})
}

// CreateTask godoc
// @Summary Create a task
// @Description Absent fields default to title "New Task", today's due date, status "To Do" and no weekday.
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body entities.NewTask true "Task data"
// @Success 200 {object} TaskResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req entities.NewTask
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	task, err := h.taskService.CreateTask(c.Request().Context(), userFromContext(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TaskResponse{Task: task, Success: true})
}

// UpdateTask godoc
// @Summary Update a task
// @Description Applies any subset of the task's mutable fields.
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body entities.TaskPatch true "Fields to change"
// @Success 200 {object} TaskResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	var patch entities.TaskPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	task, err := h.taskService.UpdateTask(c.Request().Context(), userFromContext(c), c.Param("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TaskResponse{Task: task, Success: true})
}

// DeleteTask godoc
// @Summary Archive a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	if err := h.taskService.ArchiveTask(c.Request().Context(), userFromContext(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Utility functions and helper types

func userFromContext(c echo.Context) entities.User {
	user, ok := c.Get(UserContextKey).(*entities.User)
	if !ok || user == nil {
		return entities.User{}
	}
	return *user
}

// Request/Response types
type TaskListResponse struct {
	Tasks   []*entities.Task       `json:"tasks"`
	Success bool                   `json:"success"`
	Debug   *services.DebugSummary `json:"debug,omitempty"`
}

type TaskResponse struct {
	Task    *entities.Task `json:"task"`
	Success bool           `json:"success"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
	Raw     string `json:"raw,omitempty"`
}
