// Package client talks to the planner HTTP API on behalf of the CLI task
// commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

// ErrNoTokenSource is returned by every call of a client built without a
// token source.
var ErrNoTokenSource = errors.New("no identity token available; set PLANNER_ID_TOKEN or PLANNER_REFRESH_TOKEN")

// APIError is a non-2xx answer from the planner API.
type APIError struct {
	Status  int
	Message string
	Raw     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("planner api error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return entities.ErrTaskNotFound
	case http.StatusUnauthorized:
		return entities.ErrUnauthorized
	}
	return nil
}

// Client implements ports.RemoteTaskService and ports.AssistClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

var (
	_ ports.RemoteTaskService = (*Client)(nil)
	_ ports.AssistClient      = (*Client)(nil)
)

// New creates a client for the API rooted at baseURL (for example
// http://localhost:8080/api). Requests carry the token from ts as a bearer
// token. A nil ts yields a client whose calls fail with ErrNoTokenSource.
func New(baseURL string, ts oauth2.TokenSource, timeout time.Duration, log *logger.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.WithComponent("api_client"),
	}
	if ts != nil {
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		}
	}
	return c
}

type taskListResponse struct {
	Tasks []*entities.Task `json:"tasks"`
}

type taskResponse struct {
	Task *entities.Task `json:"task"`
}

func (c *Client) ListTasks(ctx context.Context) ([]*entities.Task, error) {
	var out taskListResponse
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if out.Tasks == nil {
		out.Tasks = []*entities.Task{}
	}
	return out.Tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, task entities.NewTask) (*entities.Task, error) {
	var out taskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &out); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if out.Task == nil {
		return nil, errors.New("create task: response carried no task")
	}
	return out.Task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch entities.TaskPatch) (*entities.Task, error) {
	var out taskResponse
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if out.Task == nil {
		return nil, fmt.Errorf("update task %s: response carried no task", id)
	}
	return out.Task, nil
}

func (c *Client) ArchiveTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("archive task %s: %w", id, err)
	}
	return nil
}

// EditTasks sends a snapshot of tasks with a free-form instruction.
func (c *Client) EditTasks(ctx context.Context, tasks []*entities.Task, prompt string) ([]entities.EditedTask, error) {
	body := struct {
		Tasks  []*entities.Task `json:"tasks"`
		Prompt string           `json:"prompt"`
	}{Tasks: tasks, Prompt: prompt}

	var out struct {
		EditedTasks []entities.EditedTask `json:"editedTasks"`
	}
	if err := c.do(ctx, http.MethodPost, "/ai-edit-tasks", body, &out); err != nil {
		return nil, fmt.Errorf("ai edit: %w", err)
	}
	return out.EditedTasks, nil
}

// ParseImage asks the server to extract task candidates from a data URL.
func (c *Client) ParseImage(ctx context.Context, dataURL, instructions string) ([]entities.ParsedTask, error) {
	body := struct {
		Image        string `json:"image"`
		Instructions string `json:"instructions,omitempty"`
	}{Image: dataURL, Instructions: instructions}

	var out struct {
		Tasks []entities.ParsedTask `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodPost, "/parse-image", body, &out); err != nil {
		return nil, fmt.Errorf("parse image: %w", err)
	}
	return out.Tasks, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.httpClient == nil {
		return ErrNoTokenSource
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debugw("API call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Raw: gjson.GetBytes(data, "raw").String()}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
