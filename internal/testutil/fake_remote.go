// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// Call records one request received by FakeRemote.
type Call struct {
	Op    string // list, create, update, archive
	ID    string
	Patch entities.TaskPatch
	New   entities.NewTask
}

// FakeRemote is an in-memory implementation of ports.RemoteTaskService.
type FakeRemote struct {
	mu     sync.Mutex
	tasks  []*entities.Task
	calls  []Call
	nextID int

	// Now stamps DateCreated on created tasks.
	Now func() time.Time

	// Error injection for testing
	ListErr    error
	CreateErr  error
	ArchiveErr error
	// UpdateErrs is consumed one entry per update call; a nil entry or an
	// exhausted slice means success.
	UpdateErrs []error

	// BeforeUpdate, when set, runs before an update is answered. Tests use
	// it to hold responses back and reorder them.
	BeforeUpdate func(ctx context.Context, id string, patch entities.TaskPatch)
}

// NewFakeRemote creates an empty FakeRemote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		Now: func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) },
	}
}

// Seed adds a persisted task to the fake server.
func (f *FakeRemote) Seed(task *entities.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task.Clone())
}

// Calls returns the requests received so far.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of requests of the given op.
func (f *FakeRemote) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Stored returns the server copy of a task.
func (f *FakeRemote) Stored(id string) (*entities.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(id); i >= 0 {
		return f.tasks[i].Clone(), true
	}
	return nil, false
}

// ListTasks implements ports.RemoteTaskService.
func (f *FakeRemote) ListTasks(ctx context.Context) ([]*entities.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "list"})
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]*entities.Task, len(f.tasks))
	for i, t := range f.tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// CreateTask implements ports.RemoteTaskService.
func (f *FakeRemote) CreateTask(ctx context.Context, task entities.NewTask) (*entities.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "create", New: task})
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	f.nextID++
	created := &entities.Task{
		ID:          entities.PersistedID(fmt.Sprintf("srv-%d", f.nextID)),
		Title:       task.Title,
		DueDate:     task.DueDate,
		DateCreated: f.Now(),
		Status:      task.Status,
		Weekday:     task.Weekday,
		TodoItems:   task.TodoItems,
		Comments:    task.Comments,
	}
	created = created.Clone()
	f.tasks = append(f.tasks, created)
	return created.Clone(), nil
}

// UpdateTask implements ports.RemoteTaskService.
func (f *FakeRemote) UpdateTask(ctx context.Context, id string, patch entities.TaskPatch) (*entities.Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: "update", ID: id, Patch: patch})
	var err error
	if len(f.UpdateErrs) > 0 {
		err = f.UpdateErrs[0]
		f.UpdateErrs = f.UpdateErrs[1:]
	}
	hook := f.BeforeUpdate
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, id, patch)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return nil, entities.ErrTaskNotFound
	}
	patch.ApplyTo(f.tasks[i])
	return f.tasks[i].Clone(), nil
}

// ArchiveTask implements ports.RemoteTaskService.
func (f *FakeRemote) ArchiveTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "archive", ID: id})
	if f.ArchiveErr != nil {
		return f.ArchiveErr
	}
	i := f.index(id)
	if i < 0 {
		return entities.ErrTaskNotFound
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	return nil
}

func (f *FakeRemote) index(id string) int {
	for i, t := range f.tasks {
		if remote, _ := t.ID.RemoteID(); remote == id {
			return i
		}
	}
	return -1
}
