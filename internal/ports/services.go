package ports

import (
	"context"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// TokenVerifier verifies identity-provider bearer tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (*entities.User, error)
}

// RemoteTaskService is the client-side view of the task API consumed by the
// task store. Ids are server ids; drafts never reach this interface.
type RemoteTaskService interface {
	ListTasks(ctx context.Context) ([]*entities.Task, error)
	CreateTask(ctx context.Context, task entities.NewTask) (*entities.Task, error)
	UpdateTask(ctx context.Context, id string, patch entities.TaskPatch) (*entities.Task, error)
	ArchiveTask(ctx context.Context, id string) error
}

// AssistClient is the client-side view of the AI assist endpoints.
type AssistClient interface {
	EditTasks(ctx context.Context, tasks []*entities.Task, prompt string) ([]entities.EditedTask, error)
	ParseImage(ctx context.Context, dataURL, instructions string) ([]entities.ParsedTask, error)
}

// Part is one piece of a multimodal prompt.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// Generator produces text from a prompt made of text and inline binary parts.
type Generator interface {
	Generate(ctx context.Context, parts ...Part) (string, error)
}
