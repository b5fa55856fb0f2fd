package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/ports"
)

// ErrMissingEmail is returned when the caller's token carries no email,
// which the task backends use to scope records.
var ErrMissingEmail = errors.New("user email not found")

const defaultTaskTitle = "New Task"

// DebugSummary is the extra payload of a debug task listing.
type DebugSummary struct {
	Count     int             `json:"count"`
	Sample    []DebugTaskLine `json:"sample"`
	UserEmail string          `json:"userEmail"`
}

// DebugTaskLine is one sampled task in a DebugSummary.
type DebugTaskLine struct {
	ID      string              `json:"id"`
	Title   string              `json:"title"`
	DueDate *entities.Date      `json:"dueDate,omitempty"`
	Status  entities.TaskStatus `json:"status"`
	Weekday entities.Weekday    `json:"weekday,omitempty"`
}

// TaskService handles task-related operations
type TaskService struct {
	taskRepo ports.TaskRepository
	backend  string
	metrics  *metrics.Metrics
	now      func() time.Time
	loc      *time.Location
	logger   *logger.Logger
}

// NewTaskService creates a new task service
func NewTaskService(taskRepo ports.TaskRepository, backend string, m *metrics.Metrics, loc *time.Location, logger *logger.Logger) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{
		taskRepo: taskRepo,
		backend:  backend,
		metrics:  m,
		now:      time.Now,
		loc:      loc,
		logger:   logger.WithComponent("task_service"),
	}
}

// ListTasks returns the caller's tasks
func (s *TaskService) ListTasks(ctx context.Context, owner entities.User) ([]*entities.Task, error) {
	if owner.Email == "" {
		return nil, ErrMissingEmail
	}

	tasks, err := s.taskRepo.List(ctx, owner)
	s.metrics.ObserveBackend(s.backend, "list", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*entities.Task{}
	}
	return tasks, nil
}

// Summarize builds the debug view of a listing.
func (s *TaskService) Summarize(owner entities.User, tasks []*entities.Task) DebugSummary {
	n := min(len(tasks), 5)
	sample := make([]DebugTaskLine, 0, n)
	for _, t := range tasks[:n] {
		sample = append(sample, DebugTaskLine{
			ID:      t.ID.String(),
			Title:   t.Title,
			DueDate: t.DueDate,
			Status:  t.Status,
			Weekday: t.Weekday,
		})
	}
	return DebugSummary{Count: len(tasks), Sample: sample, UserEmail: owner.Email}
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, owner entities.User, id string) (*entities.Task, error) {
	if owner.Email == "" {
		return nil, ErrMissingEmail
	}

	task, err := s.taskRepo.Get(ctx, owner, id)
	s.metrics.ObserveBackend(s.backend, "get", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// CreateTask creates a new task, filling in defaults for absent fields
func (s *TaskService) CreateTask(ctx context.Context, owner entities.User, req entities.NewTask) (*entities.Task, error) {
	if owner.Email == "" {
		return nil, ErrMissingEmail
	}

	task := s.withDefaults(req)
	if !task.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidStatus, task.Status)
	}
	if !task.Weekday.IsValid() {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidWeekday, task.Weekday)
	}

	created, err := s.taskRepo.Create(ctx, owner, task)
	s.metrics.ObserveBackend(s.backend, "create", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.LogUserAction(owner.UID, "task_created", map[string]interface{}{
		"task_id": created.ID.String(),
	})
	return created, nil
}

func (s *TaskService) withDefaults(req entities.NewTask) entities.NewTask {
	if strings.TrimSpace(req.Title) == "" {
		req.Title = defaultTaskTitle
	}
	if req.DueDate == nil {
		today := entities.Today(s.now(), s.loc)
		req.DueDate = &today
	}
	if req.Status == "" {
		req.Status = entities.TaskStatusToDo
	}
	if req.Weekday == "" {
		req.Weekday = entities.WeekdayNone
	}
	if req.TodoItems == nil {
		req.TodoItems = []entities.TodoItem{}
	}
	return req
}

// UpdateTask applies a partial update to a task
func (s *TaskService) UpdateTask(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error) {
	if owner.Email == "" {
		return nil, ErrMissingEmail
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.GetTask(ctx, owner, id)
	}

	updated, err := s.taskRepo.Update(ctx, owner, id, patch)
	s.metrics.ObserveBackend(s.backend, "update", err)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return updated, nil
}

// ArchiveTask soft-deletes a task
func (s *TaskService) ArchiveTask(ctx context.Context, owner entities.User, id string) error {
	if owner.Email == "" {
		return ErrMissingEmail
	}

	err := s.taskRepo.Archive(ctx, owner, id)
	s.metrics.ObserveBackend(s.backend, "archive", err)
	if err != nil {
		return fmt.Errorf("failed to archive task: %w", err)
	}

	s.logger.LogUserAction(owner.UID, "task_archived", map[string]interface{}{
		"task_id": id,
	})
	return nil
}

// Ready reports whether the backend can serve requests.
func (s *TaskService) Ready(ctx context.Context) error {
	if hc, ok := s.taskRepo.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
