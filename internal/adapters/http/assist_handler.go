package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
)

// AssistHandler serves the generative AI endpoints
type AssistHandler struct {
	assistService *services.AssistService
	imageTimeout  time.Duration
	logger        *logger.Logger
}

// NewAssistHandler creates a new assist handler. Image parsing runs under its
// own imageTimeout budget.
func NewAssistHandler(assistService *services.AssistService, imageTimeout time.Duration, logger *logger.Logger) *AssistHandler {
	return &AssistHandler{
		assistService: assistService,
		imageTimeout:  imageTimeout,
		logger:        logger.WithComponent("assist_handler"),
	}
}

// EditTasks godoc
// @Summary Edit tasks with a natural-language instruction
// @Tags ai
// @Accept json
// @Produce json
// @Param request body EditTasksRequest true "Tasks and instruction"
// @Success 200 {object} EditTasksResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /ai-edit-tasks [post]
func (h *AssistHandler) EditTasks(c echo.Context) error {
	var req EditTasksRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if !gjson.ParseBytes(req.Tasks).IsArray() {
		return services.ErrNoTasks
	}
	var tasks []*entities.Task
	if err := json.Unmarshal(req.Tasks, &tasks); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task list")
	}

	edited, err := h.assistService.EditTasks(c.Request().Context(), tasks, req.Prompt)
	if err != nil {
		var malformed *services.MalformedResponseError
		if errors.As(err, &malformed) {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to parse AI response",
				Raw:   malformed.Raw,
			})
		}
		return err
	}
	return c.JSON(http.StatusOK, EditTasksResponse{EditedTasks: edited})
}

// ParseImage godoc
// @Summary Extract tasks from an image
// @Tags ai
// @Accept json
// @Produce json
// @Param request body ParseImageRequest true "Image as a data URL and optional instructions"
// @Success 200 {object} ParseImageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /parse-image [post]
func (h *AssistHandler) ParseImage(c echo.Context) error {
	var req ParseImageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.imageTimeout)
	defer cancel()

	tasks, raw, err := h.assistService.ParseImage(ctx, req.Image, req.Instructions)
	if err != nil {
		var malformed *services.MalformedResponseError
		if errors.As(err, &malformed) {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to parse structured response from vision model",
				Raw:   raw,
			})
		}
		return err
	}
	return c.JSON(http.StatusOK, ParseImageResponse{Tasks: tasks, Raw: raw, Success: true})
}

type EditTasksRequest struct {
	Tasks  json.RawMessage `json:"tasks" swaggertype:"array,object"`
	Prompt string          `json:"prompt"`
}

type EditTasksResponse struct {
	EditedTasks []entities.EditedTask `json:"editedTasks"`
}

type ParseImageRequest struct {
	Image        string `json:"image"`
	Instructions string `json:"instructions,omitempty"`
}

type ParseImageResponse struct {
	Tasks   []entities.ParsedTask `json:"tasks"`
	Raw     string                `json:"raw"`
	Success bool                  `json:"success"`
}
