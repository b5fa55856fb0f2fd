package ports

import (
	"context"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// TaskRepository defines the server-side persistence operations for tasks.
// Every operation is scoped to the owner resolved from the caller's token.
type TaskRepository interface {
	List(ctx context.Context, owner entities.User) ([]*entities.Task, error)
	Get(ctx context.Context, owner entities.User, id string) (*entities.Task, error)
	Create(ctx context.Context, owner entities.User, task entities.NewTask) (*entities.Task, error)
	Update(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error)
	Archive(ctx context.Context, owner entities.User, id string) error
}

// HealthChecker is implemented by backends that can report readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
