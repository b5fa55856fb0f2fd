package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/planner/internal/application/planner"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/testutil"
)

var cliNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeAssist struct {
	parsed []entities.ParsedTask
	edits  []entities.EditedTask

	prompt   string
	sent     []*entities.Task
	imageURL string
}

func (f *fakeAssist) EditTasks(ctx context.Context, tasks []*entities.Task, prompt string) ([]entities.EditedTask, error) {
	f.sent, f.prompt = tasks, prompt
	return f.edits, nil
}

func (f *fakeAssist) ParseImage(ctx context.Context, dataURL, instructions string) ([]entities.ParsedTask, error) {
	f.imageURL = dataURL
	return f.parsed, nil
}

func fixedEnv(remote *testutil.FakeRemote, assist *fakeAssist) envFactory {
	now := func() time.Time { return cliNow }
	return func(ctx context.Context) (*taskEnv, error) {
		store := planner.New(remote, logger.NewNop(),
			planner.WithClock(now),
			planner.WithLocation(time.UTC),
			planner.WithRetry(1, 0),
		)
		return &taskEnv{store: store, assist: assist, loc: time.UTC, now: now}, nil
	}
}

func runTasks(t *testing.T, env envFactory, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newTasksCommand(env)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seededRemote() *testutil.FakeRemote {
	remote := testutil.NewFakeRemote()
	due := entities.NewDate(2025, 3, 12)
	remote.Seed(&entities.Task{
		ID:        entities.PersistedID("page-essay"),
		Title:     "Essay",
		DueDate:   &due,
		Status:    entities.TaskStatusToDo,
		Weekday:   entities.WeekdayMonday,
		TodoItems: []entities.TodoItem{{ID: "t1", Text: "outline", Completed: true}, {ID: "t2", Text: "draft"}},
	})
	remote.Seed(&entities.Task{
		ID:        entities.PersistedID("page-lab"),
		Title:     "Lab report",
		Status:    entities.TaskStatusDoingToday,
		Weekday:   entities.WeekdayNone,
		TodoItems: []entities.TodoItem{},
	})
	return remote
}

func TestListViews(t *testing.T) {
	env := fixedEnv(seededRemote(), &fakeAssist{})

	out, err := runTasks(t, env, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "To Do (1)")
	assert.Contains(t, out, "Doing Today (1)")
	assert.Contains(t, out, "Reminders (0)")
	assert.NotContains(t, out, "Archived")
	assert.Contains(t, out, "Essay")
	assert.Contains(t, out, "due 2025-03-12 (in 2 days)")
	assert.Contains(t, out, "[1/2]")

	out, err = runTasks(t, env, "", "list", "--view", "weekdays")
	require.NoError(t, err)
	assert.Contains(t, out, "Monday (1)")
	assert.Contains(t, out, "No Weekdays (1)")

	out, err = runTasks(t, env, "", "list", "--view", "calendar")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-12 Wednesday")
	assert.Contains(t, out, "No due date (1)")

	_, err = runTasks(t, env, "", "list", "--view", "gantt")
	assert.ErrorContains(t, err, "unknown view")
}

func TestAddCreatesTask(t *testing.T) {
	remote := testutil.NewFakeRemote()
	env := fixedEnv(remote, &fakeAssist{})

	out, err := runTasks(t, env, "", "add", "Buy", "milk", "--due", "2025-03-11", "--todo", "oat", "--status", "Reminders")
	require.NoError(t, err)
	assert.Contains(t, out, "Created srv-1")

	calls := remote.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "create", calls[0].Op)
	assert.Equal(t, "Buy milk", calls[0].New.Title)
	assert.Equal(t, entities.TaskStatusReminders, calls[0].New.Status)
	assert.Equal(t, entities.WeekdayNone, calls[0].New.Weekday)
	require.NotNil(t, calls[0].New.DueDate)
	assert.Equal(t, "2025-03-11", calls[0].New.DueDate.String())
	require.Len(t, calls[0].New.TodoItems, 1)
	assert.Equal(t, "oat", calls[0].New.TodoItems[0].Text)
}

func TestAddRejectsBadInput(t *testing.T) {
	remote := testutil.NewFakeRemote()
	env := fixedEnv(remote, &fakeAssist{})

	_, err := runTasks(t, env, "", "add", "x", "--status", "Someday")
	assert.ErrorIs(t, err, entities.ErrInvalidStatus)
	_, err = runTasks(t, env, "", "add", "x", "--due", "next week")
	assert.Error(t, err)
	assert.Zero(t, remote.CallCount("create"))
}

func TestEditSendsOnlyChangedFields(t *testing.T) {
	remote := seededRemote()
	env := fixedEnv(remote, &fakeAssist{})

	out, err := runTasks(t, env, "", "edit", "page-es", "--title", "Final essay", "--clear-due")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated")

	calls := remote.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "update", last.Op)
	assert.Equal(t, "page-essay", last.ID)
	assert.Equal(t, entities.Some("Final essay"), last.Patch.Title)
	assert.True(t, last.Patch.DueDate.Set)
	assert.Nil(t, last.Patch.DueDate.Value)
	assert.False(t, last.Patch.Status.Set)

	stored, _ := remote.Stored("page-essay")
	assert.Equal(t, "Final essay", stored.Title)
	assert.Nil(t, stored.DueDate)

	_, err = runTasks(t, env, "", "edit", "page-essay")
	assert.ErrorContains(t, err, "nothing to change")
}

func TestFindByPrefix(t *testing.T) {
	env := fixedEnv(seededRemote(), &fakeAssist{})

	_, err := runTasks(t, env, "", "move", "page-", "--status", "Archived")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = runTasks(t, env, "", "move", "nope", "--status", "Archived")
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
}

func TestMove(t *testing.T) {
	remote := seededRemote()
	env := fixedEnv(remote, &fakeAssist{})

	_, err := runTasks(t, env, "", "move", "page-lab", "--status", "Doing Tomorrow", "--weekday", "Friday")
	require.NoError(t, err)

	stored, _ := remote.Stored("page-lab")
	assert.Equal(t, entities.TaskStatusDoingTomorrow, stored.Status)
	assert.Equal(t, entities.WeekdayFriday, stored.Weekday)

	_, err = runTasks(t, env, "", "move", "page-lab", "--status", "Later")
	assert.ErrorIs(t, err, entities.ErrInvalidStatus)
	_, err = runTasks(t, env, "", "move", "page-lab")
	assert.ErrorContains(t, err, "--status or --weekday")
}

func TestTodoCommands(t *testing.T) {
	remote := seededRemote()
	env := fixedEnv(remote, &fakeAssist{})

	out, err := runTasks(t, env, "", "todo", "toggle", "page-essay", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2. [x] draft")

	_, err = runTasks(t, env, "", "todo", "add", "page-essay", "cite", "sources")
	require.NoError(t, err)
	_, err = runTasks(t, env, "", "todo", "rm", "page-essay", "1")
	require.NoError(t, err)

	stored, _ := remote.Stored("page-essay")
	require.Len(t, stored.TodoItems, 2)
	assert.Equal(t, "draft", stored.TodoItems[0].Text)
	assert.True(t, stored.TodoItems[0].Completed)
	assert.Equal(t, "cite sources", stored.TodoItems[1].Text)

	_, err = runTasks(t, env, "", "todo", "toggle", "page-essay", "9")
	assert.ErrorContains(t, err, "out of range")
}

func TestRemoveArchives(t *testing.T) {
	remote := seededRemote()
	env := fixedEnv(remote, &fakeAssist{})

	out, err := runTasks(t, env, "", "rm", "page-lab")
	require.NoError(t, err)
	assert.Contains(t, out, "Archived")
	assert.Equal(t, 1, remote.CallCount("archive"))
	_, ok := remote.Stored("page-lab")
	assert.False(t, ok)
}

func TestImportImage(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	path := filepath.Join(t.TempDir(), "whiteboard.png")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	due := "2025-03-14"
	assist := &fakeAssist{parsed: []entities.ParsedTask{
		{Title: "Physics quiz", DueDate: &due, Status: "To Do"},
		{Title: "Return books", Status: "Reminders"},
		{Title: "Never asked", Status: "To Do"},
	}}
	remote := testutil.NewFakeRemote()
	env := fixedEnv(remote, assist)

	out, err := runTasks(t, env, "maybe\ny\nn\nq\n", "import-image", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(assist.imageURL, "data:image/png;base64,"))
	assert.Contains(t, out, "Found 3 task(s)")
	assert.Contains(t, out, "Created 1, skipped 1")

	calls := remote.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Physics quiz", calls[0].New.Title)
	require.NotNil(t, calls[0].New.DueDate)
	assert.Equal(t, due, calls[0].New.DueDate.String())
}

func TestImportImageYes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a......"), 0o600))

	assist := &fakeAssist{parsed: []entities.ParsedTask{{Title: "A"}, {Title: "B"}}}
	remote := testutil.NewFakeRemote()

	out, err := runTasks(t, fixedEnv(remote, assist), "", "import-image", path, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 2, skipped 0")
	assert.Equal(t, 2, remote.CallCount("create"))
}

func TestImportImageRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o600))

	_, err := runTasks(t, fixedEnv(testutil.NewFakeRemote(), &fakeAssist{}), "", "import-image", path)
	assert.ErrorContains(t, err, "unsupported image type")
}

func TestAIEditAppliesKnownIDs(t *testing.T) {
	remote := seededRemote()
	friday := "2025-03-14"
	assist := &fakeAssist{edits: []entities.EditedTask{
		{ID: "page-essay", Title: "Essay", DueDate: entities.Some(&friday), Status: "Doing Today"},
		{ID: "page-unknown", Title: "Ghost", Status: "To Do"},
	}}

	out, err := runTasks(t, fixedEnv(remote, assist), "", "ai-edit", "move", "the", "essay", "to", "friday")
	require.NoError(t, err)
	assert.Equal(t, "move the essay to friday", assist.prompt)
	assert.Len(t, assist.sent, 2)
	assert.Contains(t, out, "1 of 2 task(s) updated")

	stored, _ := remote.Stored("page-essay")
	assert.Equal(t, entities.TaskStatusDoingToday, stored.Status)
	require.NotNil(t, stored.DueDate)
	assert.Equal(t, friday, stored.DueDate.String())
}

func TestAIEditKeepsDueDateWhenOmitted(t *testing.T) {
	remote := seededRemote()
	assist := &fakeAssist{edits: []entities.EditedTask{
		{ID: "page-essay", Title: "CS101: Essay", Status: "To Do"},
	}}

	_, err := runTasks(t, fixedEnv(remote, assist), "", "ai-edit", "prefix", "course", "codes")
	require.NoError(t, err)

	stored, _ := remote.Stored("page-essay")
	assert.Equal(t, "CS101: Essay", stored.Title)
	require.NotNil(t, stored.DueDate)
	assert.Equal(t, "2025-03-12", stored.DueDate.String())
}

func TestRenderDue(t *testing.T) {
	due := entities.NewDate(2025, 3, 8)
	days := -2
	task := &entities.Task{ID: entities.PersistedID("0123456789abcdef"), Title: "Late", DueDate: &due, DaysUntilDue: &days}

	line := renderTaskLine(task)
	assert.Contains(t, line, "01234567  Late")
	assert.Contains(t, line, "(2 days overdue)")
}
