package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/testutil"
)

var midnight = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestStore(t *testing.T, remote *testutil.FakeRemote, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return midnight }),
		WithLocation(time.UTC),
		WithSleeper((&sleepRecorder{}).sleep),
	}
	return New(remote, logger.NewNop(), append(base, opts...)...)
}

func persisted(id, title string, status entities.TaskStatus) *entities.Task {
	return &entities.Task{
		ID:          entities.PersistedID(id),
		Title:       title,
		DateCreated: midnight.Add(-48 * time.Hour),
		Status:      status,
		Weekday:     entities.WeekdayNone,
		TodoItems:   []entities.TodoItem{},
	}
}

func draft(title string) *entities.Task {
	return &entities.Task{
		ID:          entities.NewDraftID(),
		Title:       title,
		DateCreated: midnight,
		Status:      entities.TaskStatusToDo,
		Weekday:     entities.WeekdayNone,
		TodoItems:   []entities.TodoItem{},
	}
}

func seeded(t *testing.T, tasks ...*entities.Task) (*Store, *testutil.FakeRemote) {
	t.Helper()
	remote := testutil.NewFakeRemote()
	for _, task := range tasks {
		remote.Seed(task)
	}
	store := newTestStore(t, remote)
	require.NoError(t, store.Load(context.Background()))
	return store, remote
}

func TestUpdateTaskRecomputesDaysUntilDue(t *testing.T) {
	store, _ := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
	id := entities.PersistedID("a")

	due := entities.NewDate(2025, 3, 14)
	require.True(t, store.UpdateTask(id, entities.TaskPatch{DueDate: entities.Some(&due)}))

	task, ok := store.Task(id)
	require.True(t, ok)
	require.NotNil(t, task.DaysUntilDue)
	assert.Equal(t, 4, *task.DaysUntilDue)

	require.True(t, store.UpdateTask(id, entities.TaskPatch{DueDate: entities.Some[*entities.Date](nil)}))
	task, _ = store.Task(id)
	assert.Nil(t, task.DueDate)
	assert.Nil(t, task.DaysUntilDue)
}

func TestUpdateTaskUnknownIDIsNoop(t *testing.T) {
	store, _ := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
	before := store.Tasks()

	assert.False(t, store.UpdateTask(entities.PersistedID("missing"), entities.TaskPatch{Title: entities.Some("x")}))
	assert.Equal(t, before, store.Tasks())
}

func TestUpdateTaskRefreshesSelection(t *testing.T) {
	store, _ := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
	task, _ := store.Task(entities.PersistedID("a"))
	store.SetSelectedTask(task)

	store.UpdateTask(task.ID, entities.TaskPatch{Title: entities.Some("Essay draft 2")})
	assert.Equal(t, "Essay draft 2", store.SelectedTask().Title)
}

func TestAddTaskIsLocalOnly(t *testing.T) {
	remote := testutil.NewFakeRemote()
	store := newTestStore(t, remote)

	due := entities.NewDate(2025, 3, 20)
	days := 10
	task := draft("Buy milk")
	task.DueDate = &due
	task.DaysUntilDue = &days
	task.TodoItems = []entities.TodoItem{{ID: "1", Text: "2%"}}

	id := store.AddTask(task)
	assert.Equal(t, task.ID, id)

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, task, tasks[0])
	assert.Empty(t, remote.Calls())
}

func TestAddTaskAssignsDraftID(t *testing.T) {
	store := newTestStore(t, testutil.NewFakeRemote())

	id := store.AddTask(&entities.Task{Title: "No id yet"})
	assert.True(t, id.IsDraft())

	_, ok := store.Task(id)
	assert.True(t, ok)
}

func TestAddTaskReplacesExistingID(t *testing.T) {
	store, _ := seeded(t,
		persisted("a", "First", entities.TaskStatusToDo),
		persisted("b", "Second", entities.TaskStatusToDo),
	)

	store.AddTask(persisted("a", "First, renamed", entities.TaskStatusReminders))

	tasks := store.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "First, renamed", tasks[0].Title)
	assert.Equal(t, "Second", tasks[1].Title)
}

func TestSetTasksDeduplicates(t *testing.T) {
	store := newTestStore(t, testutil.NewFakeRemote())

	store.SetTasks([]*entities.Task{
		persisted("a", "old", entities.TaskStatusToDo),
		persisted("b", "b", entities.TaskStatusToDo),
		persisted("a", "new", entities.TaskStatusToDo),
		nil,
	})

	tasks := store.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, entities.PersistedID("a"), tasks[0].ID)
	assert.Equal(t, "new", tasks[0].Title)
}

func TestSubmitDraftPromotesToServerID(t *testing.T) {
	remote := testutil.NewFakeRemote()
	store := newTestStore(t, remote)

	store.AddTask(persisted("p", "Existing", entities.TaskStatusToDo))
	d := draft("Call dentist")
	draftID := store.AddTask(d)
	store.AddTask(persisted("q", "After", entities.TaskStatusToDo))
	store.SetSelectedTask(d)

	require.NoError(t, store.SubmitTask(context.Background(), draftID))

	_, ok := store.Task(draftID)
	assert.False(t, ok, "draft id must be gone")

	tasks := store.Tasks()
	require.Len(t, tasks, 3)
	promoted := tasks[1]
	assert.False(t, promoted.IsDraft())

	serverID, _ := promoted.ID.RemoteID()
	server, ok := remote.Stored(serverID)
	require.True(t, ok)
	assert.Equal(t, server, promoted)

	assert.Equal(t, promoted.ID, store.SelectedTask().ID)

	calls := remote.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "create", calls[0].Op)
	assert.Equal(t, "Call dentist", calls[0].New.Title)
}

func TestSubmitDraftCreateFailureKeepsDraft(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.CreateErr = errors.New("backend not configured")
	store := newTestStore(t, remote)

	id := store.AddTask(draft("Keep me"))
	err := store.SubmitTask(context.Background(), id)
	require.Error(t, err)

	task, ok := store.Task(id)
	require.True(t, ok)
	assert.True(t, task.IsDraft())
	assert.Equal(t, 1, remote.CallCount("create"))
}

func TestSubmitPersistedSendsFullUpdate(t *testing.T) {
	store, remote := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
	id := entities.PersistedID("a")

	store.UpdateTask(id, entities.TaskPatch{
		Status:   entities.Some(entities.TaskStatusDoingToday),
		Comments: entities.Some([]string{"two pages"}),
	})
	require.NoError(t, store.SubmitTask(context.Background(), id))

	calls := remote.Calls()
	require.Len(t, calls, 2)
	update := calls[1]
	assert.Equal(t, "update", update.Op)
	assert.Equal(t, "a", update.ID)
	assert.True(t, update.Patch.Title.Set)
	assert.True(t, update.Patch.DueDate.Set)
	assert.True(t, update.Patch.TodoItems.Set)
	assert.Equal(t, entities.TaskStatusDoingToday, update.Patch.Status.Value)

	server, _ := remote.Stored("a")
	local, _ := store.Task(id)
	assert.Equal(t, server, local)
}

func TestSubmitPersistedRetries(t *testing.T) {
	t.Run("succeeds on third attempt", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		remote.Seed(persisted("a", "Essay", entities.TaskStatusToDo))
		remote.UpdateErrs = []error{errors.New("502"), errors.New("503")}
		sleeps := &sleepRecorder{}
		store := newTestStore(t, remote, WithSleeper(sleeps.sleep))
		require.NoError(t, store.Load(context.Background()))

		require.NoError(t, store.SubmitTask(context.Background(), entities.PersistedID("a")))
		assert.Equal(t, 3, remote.CallCount("update"))
		assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, sleeps.delays)
	})

	t.Run("gives up after three attempts without rollback", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		remote.Seed(persisted("a", "Essay", entities.TaskStatusToDo))
		boom := errors.New("unavailable")
		remote.UpdateErrs = []error{boom, boom, boom, boom}
		log, logs := logger.NewObserved(zapcore.WarnLevel)
		store := New(remote, log, WithClock(func() time.Time { return midnight }), WithSleeper((&sleepRecorder{}).sleep))
		require.NoError(t, store.Load(context.Background()))

		id := entities.PersistedID("a")
		store.UpdateTask(id, entities.TaskPatch{Title: entities.Some("Essay, final")})
		err := store.SubmitTask(context.Background(), id)

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, remote.CallCount("update"))
		task, _ := store.Task(id)
		assert.Equal(t, "Essay, final", task.Title)
		assert.Equal(t, 1, logs.FilterMessage("Giving up on task update").Len())
		assert.Equal(t, 3, logs.FilterMessage("Task update failed").Len())
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		remote.Seed(persisted("a", "Essay", entities.TaskStatusToDo))
		remote.UpdateErrs = []error{errors.New("timeout")}
		store := newTestStore(t, remote)
		require.NoError(t, store.Load(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := store.SubmitTask(ctx, entities.PersistedID("a"))

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, remote.CallCount("update"))
	})
}

func TestSubmitUnknownTask(t *testing.T) {
	store := newTestStore(t, testutil.NewFakeRemote())
	err := store.SubmitTask(context.Background(), entities.PersistedID("nope"))
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
}

func TestSubmitPartial(t *testing.T) {
	t.Run("draft is a no-op", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		store := newTestStore(t, remote)
		id := store.AddTask(draft("Draft"))
		store.UpdateTask(id, entities.TaskPatch{Weekday: entities.Some(entities.WeekdayFriday)})
		before := store.Tasks()

		require.NoError(t, store.SubmitPartial(context.Background(), id, entities.TaskPatch{Weekday: entities.Some(entities.WeekdayFriday)}))

		assert.Empty(t, remote.Calls())
		assert.Equal(t, before, store.Tasks())
	})

	t.Run("persisted sends only the patch once", func(t *testing.T) {
		store, remote := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
		id := entities.PersistedID("a")
		patch := entities.TaskPatch{Status: entities.Some(entities.TaskStatusDoingTomorrow)}
		store.UpdateTask(id, patch)

		require.NoError(t, store.SubmitPartial(context.Background(), id, patch))

		calls := remote.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, patch, calls[1].Patch)
		task, _ := store.Task(id)
		assert.Equal(t, entities.TaskStatusDoingTomorrow, task.Status)
	})

	t.Run("failure is not retried and keeps local state", func(t *testing.T) {
		store, remote := seeded(t, persisted("a", "Essay", entities.TaskStatusToDo))
		remote.UpdateErrs = []error{errors.New("offline")}
		id := entities.PersistedID("a")
		patch := entities.TaskPatch{Weekday: entities.Some(entities.WeekdayMonday)}
		store.UpdateTask(id, patch)

		require.Error(t, store.SubmitPartial(context.Background(), id, patch))

		assert.Equal(t, 1, remote.CallCount("update"))
		task, _ := store.Task(id)
		assert.Equal(t, entities.WeekdayMonday, task.Weekday)
	})
}

func TestDeleteTask(t *testing.T) {
	t.Run("failed archive restores position", func(t *testing.T) {
		store, remote := seeded(t,
			persisted("a", "A", entities.TaskStatusToDo),
			persisted("b", "B", entities.TaskStatusToDo),
			persisted("c", "C", entities.TaskStatusToDo),
		)
		remote.ArchiveErr = errors.New("500")
		before := store.Tasks()

		require.Error(t, store.DeleteTask(context.Background(), entities.PersistedID("b")))

		assert.Equal(t, before, store.Tasks())
	})

	t.Run("successful archive keeps task removed", func(t *testing.T) {
		store, remote := seeded(t, persisted("a", "A", entities.TaskStatusToDo))

		require.NoError(t, store.DeleteTask(context.Background(), entities.PersistedID("a")))

		assert.Empty(t, store.Tasks())
		assert.Equal(t, 1, remote.CallCount("archive"))
	})

	t.Run("removal is visible before the archive resolves", func(t *testing.T) {
		store, remote := seeded(t, persisted("a", "A", entities.TaskStatusToDo))
		var seen []int
		cancel := store.Subscribe(func() { seen = append(seen, len(store.Tasks())) })
		defer cancel()
		remote.ArchiveErr = errors.New("500")

		_ = store.DeleteTask(context.Background(), entities.PersistedID("a"))

		assert.Equal(t, []int{0, 1}, seen)
	})

	t.Run("draft never reaches the server", func(t *testing.T) {
		remote := testutil.NewFakeRemote()
		store := newTestStore(t, remote)
		id := store.AddTask(draft("Scratch"))

		require.NoError(t, store.DeleteTask(context.Background(), id))

		assert.Empty(t, store.Tasks())
		assert.Empty(t, remote.Calls())
	})
}

func TestUpdateTaskIsIdempotent(t *testing.T) {
	once, _ := seeded(t, persisted("a", "A", entities.TaskStatusToDo))
	twice, _ := seeded(t, persisted("a", "A", entities.TaskStatusToDo))
	id := entities.PersistedID("a")
	patch := entities.TaskPatch{Status: entities.Some(entities.TaskStatusArchived)}

	once.UpdateTask(id, patch)
	twice.UpdateTask(id, patch)
	twice.UpdateTask(id, patch)

	assert.Equal(t, once.Tasks(), twice.Tasks())
}

func TestDraftToPersistedScenario(t *testing.T) {
	remote := testutil.NewFakeRemote()
	store := newTestStore(t, remote)

	id := store.AddTask(draft("Return library books"))
	task, _ := store.Task(id)
	assert.Nil(t, task.DueDate)

	due := entities.Today(midnight, time.UTC).AddDays(3)
	store.UpdateTask(id, entities.TaskPatch{
		DueDate:   entities.Some(&due),
		Weekday:   entities.Some(entities.WeekdayThursday),
		TodoItems: entities.Some([]entities.TodoItem{{ID: "t1", Text: "find receipt"}}),
	})
	task, _ = store.Task(id)
	require.NotNil(t, task.DaysUntilDue)
	assert.Equal(t, 3, *task.DaysUntilDue)

	require.NoError(t, store.SubmitTask(context.Background(), id))

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.False(t, got.IsDraft())
	assert.Equal(t, due, *got.DueDate)
	assert.Equal(t, entities.TaskStatusToDo, got.Status)
	assert.Equal(t, entities.WeekdayThursday, got.Weekday)
	assert.Equal(t, []entities.TodoItem{{ID: "t1", Text: "find receipt"}}, got.TodoItems)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.Seed(persisted("a", "v0", entities.TaskStatusToDo))
	log, logs := logger.NewObserved(zapcore.DebugLevel)
	store := New(remote, log, WithClock(func() time.Time { return midnight }))
	require.NoError(t, store.Load(context.Background()))
	id := entities.PersistedID("a")

	remote.BeforeUpdate = func(ctx context.Context, _ string, _ entities.TaskPatch) {
		// The user keeps typing while the request is in flight.
		store.UpdateTask(id, entities.TaskPatch{Title: entities.Some("v2")})
	}
	store.UpdateTask(id, entities.TaskPatch{Title: entities.Some("v1")})
	require.NoError(t, store.SubmitTask(context.Background(), id))

	task, _ := store.Task(id)
	assert.Equal(t, "v2", task.Title)
	assert.Equal(t, 1, logs.FilterMessage("Discarding stale response").Len())
}

func TestOverlappingSubmitsLatestRequestWins(t *testing.T) {
	store, remote := seeded(t, persisted("a", "v0", entities.TaskStatusToDo))
	id := entities.PersistedID("a")

	release := make(chan struct{})
	remote.BeforeUpdate = func(ctx context.Context, _ string, patch entities.TaskPatch) {
		if patch.Title.Value == "v1" {
			<-release
		}
	}

	store.UpdateTask(id, entities.TaskPatch{Title: entities.Some("v1")})
	done := make(chan error, 1)
	go func() { done <- store.SubmitTask(context.Background(), id) }()
	require.Eventually(t, func() bool { return remote.CallCount("update") == 1 }, time.Second, time.Millisecond)

	store.UpdateTask(id, entities.TaskPatch{Title: entities.Some("v2")})
	require.NoError(t, store.SubmitTask(context.Background(), id))

	close(release)
	require.NoError(t, <-done)

	task, _ := store.Task(id)
	assert.Equal(t, "v2", task.Title)
}

func TestResponseForDeletedTaskIsDropped(t *testing.T) {
	store, remote := seeded(t, persisted("a", "A", entities.TaskStatusToDo), persisted("b", "B", entities.TaskStatusToDo))
	id := entities.PersistedID("a")

	remote.BeforeUpdate = func(ctx context.Context, _ string, _ entities.TaskPatch) {
		// A reload that no longer contains the task.
		store.SetTasks([]*entities.Task{persisted("b", "B", entities.TaskStatusToDo)})
	}
	require.NoError(t, store.SubmitPartial(context.Background(), id, entities.TaskPatch{Title: entities.Some("A2")}))

	_, ok := store.Task(id)
	assert.False(t, ok)
}

func TestLoadFailure(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.ListErr = errors.New("401 unauthorized")
	store := newTestStore(t, remote)

	require.Error(t, store.Load(context.Background()))
	assert.Empty(t, store.Tasks())
}

func TestViewState(t *testing.T) {
	store := newTestStore(t, testutil.NewFakeRemote())
	assert.Equal(t, entities.ViewBoard, store.CurrentView())
	assert.False(t, store.IsModalOpen())
	assert.Nil(t, store.SelectedTask())

	store.SetCurrentView(entities.ViewCalendar)
	store.SetIsModalOpen(true)
	task := draft("Pick")
	store.SetSelectedTask(task)

	assert.Equal(t, entities.ViewCalendar, store.CurrentView())
	assert.True(t, store.IsModalOpen())
	assert.Equal(t, task, store.SelectedTask())

	store.SetSelectedTask(nil)
	assert.Nil(t, store.SelectedTask())
}

func TestSubscribe(t *testing.T) {
	store := newTestStore(t, testutil.NewFakeRemote())
	calls := 0
	cancel := store.Subscribe(func() { calls++ })

	store.AddTask(draft("one"))
	store.SetIsModalOpen(true)
	assert.Equal(t, 2, calls)

	cancel()
	cancel()
	store.AddTask(draft("two"))
	assert.Equal(t, 2, calls)
}

func TestRefreshDaysUntilDue(t *testing.T) {
	now := midnight
	store := New(testutil.NewFakeRemote(), nil, WithClock(func() time.Time { return now }), WithLocation(time.UTC))
	due := entities.NewDate(2025, 3, 12)
	id := store.AddTask(draft("Rollover"))
	store.UpdateTask(id, entities.TaskPatch{DueDate: entities.Some(&due)})

	now = midnight.Add(24 * time.Hour)
	store.RefreshDaysUntilDue()

	task, _ := store.Task(id)
	assert.Equal(t, 1, *task.DaysUntilDue)
}
