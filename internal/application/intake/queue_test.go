package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/planner/internal/application/planner"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/testutil"
)

var now = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func candidates(titles ...string) []entities.ParsedTask {
	out := make([]entities.ParsedTask, len(titles))
	for i, title := range titles {
		out[i] = entities.ParsedTask{Title: title, Status: "To Do"}
	}
	return out
}

func TestQueue(t *testing.T) {
	q := NewQueue(candidates("a", "b", "c"))
	assert.Equal(t, 3, q.Len())

	c, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "a", c.Title)

	c, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, "b", c.Title)
	assert.Equal(t, 2, q.Len())

	q.Skip()
	_, ok = q.Current()
	assert.False(t, ok)
	_, ok = q.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func newImporter(remote *testutil.FakeRemote) (*Importer, *planner.Store) {
	store := planner.New(remote, nil, planner.WithClock(func() time.Time { return now }))
	return NewImporter(store, func() time.Time { return now }, time.UTC), store
}

func TestImporterRun(t *testing.T) {
	remote := testutil.NewFakeRemote()
	im, store := newImporter(remote)
	q := NewQueue(candidates("Read chapter 3", "Spam", "Lab report"))

	var seen []int
	res, err := im.Run(context.Background(), q, func(ctx context.Context, id entities.TaskID, remaining int) (Decision, error) {
		seen = append(seen, remaining)
		assert.True(t, id.IsDraft())
		assert.True(t, store.IsModalOpen())
		task, ok := store.Task(id)
		require.True(t, ok)
		if task.Title == "Spam" {
			return Reject, nil
		}
		return Accept, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, seen)
	assert.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Rejected)
	assert.False(t, store.IsModalOpen())

	tasks := store.Tasks()
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.False(t, task.IsDraft())
	}
	assert.Equal(t, 2, remote.CallCount("create"))
	assert.Equal(t, 0, remote.CallCount("archive"))
}

func TestImporterCancelClearsQueue(t *testing.T) {
	remote := testutil.NewFakeRemote()
	im, store := newImporter(remote)
	q := NewQueue(candidates("one", "two"))

	res, err := im.Run(context.Background(), q, func(context.Context, entities.TaskID, int) (Decision, error) {
		return Cancel, nil
	})

	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, store.Tasks())
	assert.Empty(t, remote.Calls())
}

func TestImporterSubmitFailureKeepsDraft(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.CreateErr = errors.New("backend not configured")
	im, store := newImporter(remote)

	res, err := im.Run(context.Background(), NewQueue(candidates("x")), func(context.Context, entities.TaskID, int) (Decision, error) {
		return Accept, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsDraft())
}

func TestImporterConfirmError(t *testing.T) {
	im, store := newImporter(testutil.NewFakeRemote())
	boom := errors.New("stdin closed")

	_, err := im.Run(context.Background(), NewQueue(candidates("x", "y")), func(context.Context, entities.TaskID, int) (Decision, error) {
		return Accept, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.Tasks())
}

// trackingStore records modal transitions and can fail draft discards.
type trackingStore struct {
	*planner.Store
	modal     []bool
	deleteErr error
}

func (s *trackingStore) SetIsModalOpen(open bool) {
	s.modal = append(s.modal, open)
	s.Store.SetIsModalOpen(open)
}

func (s *trackingStore) DeleteTask(ctx context.Context, id entities.TaskID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.DeleteTask(ctx, id)
}

func TestImporterClosesModalAfterFailedSubmit(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.CreateErr = errors.New("backend down")
	store := &trackingStore{Store: planner.New(remote, nil, planner.WithClock(func() time.Time { return now }))}
	im := NewImporter(store, func() time.Time { return now }, time.UTC)

	res, err := im.Run(context.Background(), NewQueue(candidates("a", "b")), func(context.Context, entities.TaskID, int) (Decision, error) {
		return Accept, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []bool{true, false, true, false}, store.modal)
	assert.False(t, store.IsModalOpen())
}

func TestImporterCountsFailedDiscards(t *testing.T) {
	store := &trackingStore{
		Store:     planner.New(testutil.NewFakeRemote(), nil, planner.WithClock(func() time.Time { return now })),
		deleteErr: errors.New("discard failed"),
	}
	im := NewImporter(store, func() time.Time { return now }, time.UTC)

	decisions := []Decision{Reject, Cancel}
	res, err := im.Run(context.Background(), NewQueue(candidates("a", "b", "c")), func(context.Context, entities.TaskID, int) (Decision, error) {
		d := decisions[0]
		decisions = decisions[1:]
		return d, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, 2, res.Failed)

	boom := errors.New("stdin closed")
	_, err = im.Run(context.Background(), NewQueue(candidates("d")), func(context.Context, entities.TaskID, int) (Decision, error) {
		return Accept, boom
	})
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, store.deleteErr)
}
