package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/planner/internal/infrastructure/config"
)

// VersionHandler reports the deployed build.
type VersionHandler struct {
	build config.BuildConfig
	now   func() time.Time
}

func NewVersionHandler(build config.BuildConfig) *VersionHandler {
	return &VersionHandler{build: build, now: time.Now}
}

// Version godoc
// @Summary Build information
// @Tags meta
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /version [get]
func (h *VersionHandler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{
		SHA:       h.build.CommitSHA,
		Message:   h.build.CommitMessage,
		Branch:    h.build.Branch,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

type VersionResponse struct {
	SHA       string `json:"sha"`
	Message   string `json:"msg"`
	Branch    string `json:"branch"`
	Timestamp string `json:"ts"`
}
