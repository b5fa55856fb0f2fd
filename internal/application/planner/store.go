// Package planner holds the client-side task store: the in-memory source of
// truth for tasks and view state, applying every edit optimistically and
// reconciling with the remote task service afterwards.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

// ErrSubmitInProgress is returned when a draft is submitted while its create
// request is still outstanding.
var ErrSubmitInProgress = errors.New("draft submit already in progress")

type entry struct {
	task *entities.Task
	// rev is the latest store revision applied to this task, either by a
	// local mutation or by a server response.
	rev uint64
}

// Store is safe for concurrent use. The lock is never held while a request
// to the remote service is outstanding.
type Store struct {
	remote ports.RemoteTaskService
	logger *logger.Logger

	now      func() time.Time
	loc      *time.Location
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	rev       uint64
	tasks     []entry
	creating  map[entities.TaskID]bool
	view      entities.ViewType
	selected  *entities.Task
	modalOpen bool

	subs    map[int]func()
	nextSub int
}

// New creates a task store backed by remote.
func New(remote ports.RemoteTaskService, log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Store{
		remote:   remote,
		logger:   log.WithComponent("task_store"),
		now:      time.Now,
		loc:      time.Local,
		attempts: defaultRetryAttempts,
		backoff:  defaultRetryBackoff,
		sleep:    sleepContext,
		creating: make(map[entities.TaskID]bool),
		view:     entities.ViewBoard,
		subs:     make(map[int]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTasks replaces the whole collection. Duplicate ids keep the position of
// their first occurrence and the value of their last.
func (s *Store) SetTasks(tasks []*entities.Task) {
	s.mu.Lock()
	next := make([]entry, 0, len(tasks))
	pos := make(map[entities.TaskID]int, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		c := t.Clone()
		if c.ID.IsZero() {
			c.ID = entities.NewDraftID()
		}
		e := entry{task: c, rev: s.nextRev()}
		if i, ok := pos[c.ID]; ok {
			next[i] = e
			continue
		}
		pos[c.ID] = len(next)
		next = append(next, e)
	}
	s.tasks = next
	s.refreshSelectedLocked()
	s.mu.Unlock()

	s.notify()
}

// Load fetches the caller's tasks from the remote service and replaces the
// collection with them.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.remote.ListTasks(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load tasks")
		return fmt.Errorf("load tasks: %w", err)
	}
	s.SetTasks(tasks)
	s.logger.Debugw("Tasks loaded", "count", len(tasks))
	return nil
}

// AddTask inserts task locally and returns its id. A task without an id gets
// a fresh draft id; a task whose id is already present replaces it in place.
// The remote service is never contacted.
func (s *Store) AddTask(task *entities.Task) entities.TaskID {
	if task == nil {
		return entities.TaskID{}
	}
	c := task.Clone()
	if c.ID.IsZero() {
		c.ID = entities.NewDraftID()
	}

	s.mu.Lock()
	e := entry{task: c, rev: s.nextRev()}
	if i := s.indexLocked(c.ID); i >= 0 {
		s.tasks[i] = e
	} else {
		s.tasks = append(s.tasks, e)
	}
	s.refreshSelectedLocked()
	s.mu.Unlock()

	s.notify()
	return c.ID
}

// UpdateTask merges patch into the task with the given id. A due date in the
// patch recomputes DaysUntilDue in the same update. It reports whether the
// task was found; an unknown id is a no-op.
func (s *Store) UpdateTask(id entities.TaskID, patch entities.TaskPatch) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	e := &s.tasks[i]
	if patch.ApplyTo(e.task) {
		e.task.RefreshDaysUntilDue(s.now(), s.loc)
	}
	e.rev = s.nextRev()
	s.refreshSelectedLocked()
	s.mu.Unlock()

	s.notify()
	return true
}

// SubmitTask persists the task with the given id in full. A draft is created
// on the server and replaced, in the same position, by the server's copy. A
// persisted task is sent as a full update, retried with a linear backoff; the
// local copy is kept as-is when every attempt fails.
func (s *Store) SubmitTask(ctx context.Context, id entities.TaskID) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("submit %s: %w", id, entities.ErrTaskNotFound)
	}
	snapshot := s.tasks[i].task.Clone()
	remoteID, persisted := id.RemoteID()
	if !persisted && s.creating[id] {
		s.mu.Unlock()
		return fmt.Errorf("submit %s: %w", id, ErrSubmitInProgress)
	}
	if !persisted {
		s.creating[id] = true
	}
	rev := s.nextRev()
	s.mu.Unlock()

	if !persisted {
		return s.create(ctx, id, snapshot, rev)
	}
	return s.update(ctx, id, remoteID, entities.FullPatch(snapshot), rev)
}

func (s *Store) create(ctx context.Context, draftID entities.TaskID, draft *entities.Task, rev uint64) error {
	created, err := s.remote.CreateTask(ctx, entities.NewTaskFrom(draft))

	s.mu.Lock()
	delete(s.creating, draftID)
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Errorw("Failed to create task", "draft_id", draftID.String())
		return fmt.Errorf("create task: %w", err)
	}
	if created == nil {
		return fmt.Errorf("create task: empty response")
	}

	s.promote(draftID, created, rev)
	s.logger.Infow("Task created", "draft_id", draftID.String(), "task_id", created.ID.String())
	return nil
}

// promote swaps the draft for the server's copy of the created task.
func (s *Store) promote(draftID entities.TaskID, created *entities.Task, rev uint64) {
	server := created.Clone()

	s.mu.Lock()
	i := s.indexLocked(draftID)
	switch {
	case i < 0:
		// The draft was discarded while the create was in flight; the server
		// copy is kept so it does not silently disappear.
		if s.indexLocked(server.ID) < 0 {
			s.tasks = append(s.tasks, entry{task: server, rev: rev})
		}
		s.logger.Warnw("Draft removed before create completed", "draft_id", draftID.String(), "task_id", server.ID.String())
	case s.indexLocked(server.ID) >= 0:
		// A reload already brought in the server copy.
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	case s.tasks[i].rev > rev:
		// Edited locally after the request was sent: keep the edits under
		// the new identity. The next submit persists them.
		local := s.tasks[i].task
		local.ID = server.ID
		local.DateCreated = server.DateCreated
		s.logger.Debugw("Keeping local edits made during create", "task_id", server.ID.String())
	default:
		s.tasks[i] = entry{task: server, rev: rev}
	}

	if s.selected != nil && s.selected.ID == draftID {
		if j := s.indexLocked(server.ID); j >= 0 {
			s.selected = s.tasks[j].task.Clone()
		}
	}
	s.refreshSelectedLocked()
	s.mu.Unlock()

	s.notify()
}

func (s *Store) update(ctx context.Context, id entities.TaskID, remoteID string, patch entities.TaskPatch, rev uint64) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		var updated *entities.Task
		updated, err = s.remote.UpdateTask(ctx, remoteID, patch)
		if err == nil {
			s.reconcile(id, updated, rev)
			return nil
		}

		s.logger.WithError(err).Warnw("Task update failed", "task_id", remoteID, "attempt", attempt, "max_attempts", s.attempts)
		if attempt == s.attempts {
			break
		}
		if serr := s.sleep(ctx, time.Duration(attempt)*s.backoff); serr != nil {
			err = serr
			break
		}
	}

	s.logger.WithError(err).Errorw("Giving up on task update", "task_id", remoteID)
	return fmt.Errorf("update task %s: %w", remoteID, err)
}

// SubmitPartial persists only the fields in patch. Drafts are skipped
// without a request. A single attempt is made.
func (s *Store) SubmitPartial(ctx context.Context, id entities.TaskID, patch entities.TaskPatch) error {
	remoteID, persisted := id.RemoteID()
	if !persisted || patch.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("submit %s: %w", id, entities.ErrTaskNotFound)
	}
	rev := s.nextRev()
	s.mu.Unlock()

	updated, err := s.remote.UpdateTask(ctx, remoteID, patch)
	if err != nil {
		s.logger.WithError(err).Warnw("Partial task update failed", "task_id", remoteID)
		return fmt.Errorf("update task %s: %w", remoteID, err)
	}
	s.reconcile(id, updated, rev)
	return nil
}

// reconcile replaces the local copy with the server's unless something newer
// than the request has already been applied.
func (s *Store) reconcile(id entities.TaskID, updated *entities.Task, rev uint64) {
	if updated == nil {
		return
	}

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debugw("Dropping response for removed task", "task_id", id.String())
		return
	}
	if rev < s.tasks[i].rev {
		applied := s.tasks[i].rev
		s.mu.Unlock()
		s.logger.Debugw("Discarding stale response", "task_id", id.String(), "request_rev", rev, "applied_rev", applied)
		return
	}
	server := updated.Clone()
	if server.ID.IsZero() {
		server.ID = id
	}
	s.tasks[i] = entry{task: server, rev: rev}
	if s.selected != nil && s.selected.ID == id {
		s.selected = server.Clone()
	}
	s.mu.Unlock()

	s.notify()
}

// DeleteTask removes the task locally right away. Persisted tasks are then
// archived on the server; if that fails the task is put back where it was.
func (s *Store) DeleteTask(ctx context.Context, id entities.TaskID) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, entities.ErrTaskNotFound)
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.nextRev()
	s.mu.Unlock()
	s.notify()

	remoteID, persisted := id.RemoteID()
	if !persisted {
		return nil
	}

	if err := s.remote.ArchiveTask(ctx, remoteID); err != nil {
		s.logger.WithError(err).Errorw("Failed to archive task, restoring", "task_id", remoteID)
		s.restore(i, removed)
		return fmt.Errorf("archive task %s: %w", remoteID, err)
	}
	s.logger.Infow("Task archived", "task_id", remoteID)
	return nil
}

func (s *Store) restore(pos int, e entry) {
	s.mu.Lock()
	if s.indexLocked(e.task.ID) >= 0 {
		// Re-added while the archive was in flight.
		s.mu.Unlock()
		return
	}
	if pos > len(s.tasks) {
		pos = len(s.tasks)
	}
	e.rev = s.nextRev()
	s.tasks = append(s.tasks, entry{})
	copy(s.tasks[pos+1:], s.tasks[pos:])
	s.tasks[pos] = e
	s.mu.Unlock()

	s.notify()
}

// RefreshDaysUntilDue recomputes the due counter of every task against the
// current time, for views that stay open across midnight.
func (s *Store) RefreshDaysUntilDue() {
	s.mu.Lock()
	now := s.now()
	for i := range s.tasks {
		s.tasks[i].task.RefreshDaysUntilDue(now, s.loc)
	}
	s.refreshSelectedLocked()
	s.mu.Unlock()

	s.notify()
}

func (s *Store) SetCurrentView(v entities.ViewType) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.notify()
}

// SetSelectedTask stores a snapshot of task, or clears the selection on nil.
func (s *Store) SetSelectedTask(task *entities.Task) {
	s.mu.Lock()
	s.selected = task.Clone()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetIsModalOpen(open bool) {
	s.mu.Lock()
	s.modalOpen = open
	s.mu.Unlock()
	s.notify()
}

// Tasks returns copies of all tasks in collection order.
func (s *Store) Tasks() []*entities.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entities.Task, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = e.task.Clone()
	}
	return out
}

// Task returns a copy of the task with the given id.
func (s *Store) Task(id entities.TaskID) (*entities.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return s.tasks[i].task.Clone(), true
}

func (s *Store) CurrentView() entities.ViewType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SelectedTask returns the selection snapshot. It may refer to a task that
// has since been removed.
func (s *Store) SelectedTask() *entities.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected.Clone()
}

func (s *Store) IsModalOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modalOpen
}

// Subscribe registers fn to run after every state change. fn runs on the
// goroutine that made the change, outside the store lock.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Store) nextRev() uint64 {
	s.rev++
	return s.rev
}

func (s *Store) indexLocked(id entities.TaskID) int {
	for i, e := range s.tasks {
		if e.task.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) refreshSelectedLocked() {
	if s.selected == nil {
		return
	}
	if i := s.indexLocked(s.selected.ID); i >= 0 {
		s.selected = s.tasks[i].task.Clone()
	}
}
