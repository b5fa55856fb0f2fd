package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
)

type ownedTask struct {
	owner string
	task  *entities.Task
}

// FakeRepository is an in-memory implementation of ports.TaskRepository
// scoped by owner email.
type FakeRepository struct {
	mu     sync.Mutex
	tasks  []ownedTask
	nextID int

	Now func() time.Time

	// Error injection for testing
	ListErr    error
	GetErr     error
	CreateErr  error
	UpdateErr  error
	ArchiveErr error
	PingErr    error

	// LastCreate holds the payload of the most recent create.
	LastCreate entities.NewTask
}

// NewFakeRepository creates an empty FakeRepository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		Now: func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) },
	}
}

// Seed stores a task owned by email.
func (f *FakeRepository) Seed(email string, task *entities.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, ownedTask{owner: email, task: task.Clone()})
}

// List implements ports.TaskRepository.
func (f *FakeRepository) List(ctx context.Context, owner entities.User) ([]*entities.Task, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.Task
	for _, ot := range f.tasks {
		if ot.owner == owner.Email {
			out = append(out, ot.task.Clone())
		}
	}
	return out, nil
}

// Get implements ports.TaskRepository.
func (f *FakeRepository) Get(ctx context.Context, owner entities.User, id string) (*entities.Task, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(owner.Email, id)
	if i < 0 {
		return nil, entities.ErrTaskNotFound
	}
	return f.tasks[i].task.Clone(), nil
}

// Create implements ports.TaskRepository.
func (f *FakeRepository) Create(ctx context.Context, owner entities.User, task entities.NewTask) (*entities.Task, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastCreate = task
	f.nextID++
	created := &entities.Task{
		ID:          entities.PersistedID(fmt.Sprintf("page-%d", f.nextID)),
		Title:       task.Title,
		DueDate:     task.DueDate,
		DateCreated: f.Now(),
		Status:      task.Status,
		Weekday:     task.Weekday,
		TodoItems:   task.TodoItems,
		Comments:    task.Comments,
	}
	created = created.Clone()
	f.tasks = append(f.tasks, ownedTask{owner: owner.Email, task: created})
	return created.Clone(), nil
}

// Update implements ports.TaskRepository.
func (f *FakeRepository) Update(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error) {
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(owner.Email, id)
	if i < 0 {
		return nil, entities.ErrTaskNotFound
	}
	patch.ApplyTo(f.tasks[i].task)
	return f.tasks[i].task.Clone(), nil
}

// Archive implements ports.TaskRepository.
func (f *FakeRepository) Archive(ctx context.Context, owner entities.User, id string) error {
	if f.ArchiveErr != nil {
		return f.ArchiveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(owner.Email, id)
	if i < 0 {
		return entities.ErrTaskNotFound
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	return nil
}

// Ping implements ports.HealthChecker.
func (f *FakeRepository) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *FakeRepository) index(owner, id string) int {
	for i, ot := range f.tasks {
		if remote, _ := ot.task.ID.RemoteID(); remote == id && ot.owner == owner {
			return i
		}
	}
	return -1
}
