package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

type scriptedGenerator struct {
	reply string
	err   error
	parts []ports.Part
}

func (g *scriptedGenerator) Generate(ctx context.Context, parts ...ports.Part) (string, error) {
	g.parts = parts
	return g.reply, g.err
}

func newAssistService(gen ports.Generator) *AssistService {
	svc := NewAssistService(gen, nil, time.UTC, logger.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC) }
	return svc
}

func pngDataURL(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestEditTasksInputErrors(t *testing.T) {
	svc := newAssistService(&scriptedGenerator{})
	task := &entities.Task{ID: entities.PersistedID("p1"), Title: "Essay"}

	_, err := svc.EditTasks(context.Background(), nil, "move everything")
	assert.ErrorIs(t, err, ErrNoTasks)
	assert.True(t, IsInvalidInput(err))

	_, err = svc.EditTasks(context.Background(), []*entities.Task{task}, "   ")
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestEditTasks(t *testing.T) {
	gen := &scriptedGenerator{reply: "Sure! Here you go:\n" +
		`{"editedTasks":[{"id":"p1","title":"Essay draft","dueDate":"2025-09-20","status":"Doing Today"}]}` +
		"\nLet me know if you need more."}
	svc := newAssistService(gen)
	due := entities.NewDate(2025, 9, 18)
	tasks := []*entities.Task{
		{ID: entities.PersistedID("p1"), Title: "Essay", DueDate: &due, Status: entities.TaskStatusToDo, Comments: []string{"5 pages"}},
		{ID: entities.PersistedID("p2"), Title: "Laundry", Status: entities.TaskStatusReminders},
	}

	edited, err := svc.EditTasks(context.Background(), tasks, "I'm starting the essay today")
	require.NoError(t, err)
	require.Len(t, edited, 1)
	assert.Equal(t, "p1", edited[0].ID)
	assert.Equal(t, "Essay draft", edited[0].Title)
	assert.Equal(t, "Doing Today", edited[0].Status)

	require.Len(t, gen.parts, 1)
	prompt := gen.parts[0].Text
	assert.Contains(t, prompt, "ID: p1")
	assert.Contains(t, prompt, "Due Date: 2025-09-18")
	assert.Contains(t, prompt, "Due Date: Not set")
	assert.Contains(t, prompt, "Notes: 5 pages")
	assert.Contains(t, prompt, "I'm starting the essay today")
	assert.Contains(t, prompt, "Notes: None")
	assert.Contains(t, prompt, "Preserve information not mentioned in the instruction")
	assert.Contains(t, prompt, `"comments":["..."]`)
	assert.False(t, edited[0].Comments.Set)
}

func TestEditTasksMalformed(t *testing.T) {
	task := &entities.Task{ID: entities.PersistedID("p1"), Title: "Essay"}

	for name, reply := range map[string]string{
		"no json":        "I could not do that.",
		"missing array":  `{"tasks":[]}`,
		"array not list": `{"editedTasks":{"id":"p1"}}`,
		"broken json":    `{"editedTasks":[{"id":}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := newAssistService(&scriptedGenerator{reply: reply})
			_, err := svc.EditTasks(context.Background(), []*entities.Task{task}, "do it")
			require.ErrorIs(t, err, ErrMalformedAIResponse)

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, reply, malformed.Raw)
		})
	}
}

func TestEditTasksGeneratorFailure(t *testing.T) {
	svc := newAssistService(&scriptedGenerator{err: errors.New("quota exceeded")})
	_, err := svc.EditTasks(context.Background(), []*entities.Task{{ID: entities.PersistedID("p1")}}, "x")
	require.Error(t, err)
	assert.False(t, IsInvalidInput(err))
	assert.NotErrorIs(t, err, ErrMalformedAIResponse)
}

func TestAssistNotConfigured(t *testing.T) {
	svc := newAssistService(nil)

	_, err := svc.EditTasks(context.Background(), []*entities.Task{{ID: entities.PersistedID("p1")}}, "x")
	assert.ErrorIs(t, err, entities.ErrNotConfigured)

	_, _, err = svc.ParseImage(context.Background(), pngDataURL("img"), "")
	assert.ErrorIs(t, err, entities.ErrNotConfigured)
}

func TestParseImageInputErrors(t *testing.T) {
	svc := newAssistService(&scriptedGenerator{})

	_, _, err := svc.ParseImage(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoImage)

	_, _, err = svc.ParseImage(context.Background(), "data:image/bmp;base64,AAAA", "")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, _, err = svc.ParseImage(context.Background(), "https://example.com/cat.png", "")
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.True(t, IsInvalidInput(err))
}

func TestParseImage(t *testing.T) {
	reply := "```json\n[{\"title\":\"Lab report\",\"dueDate\":\"2025-09-22\",\"status\":\"To Do\",\"priority\":\"high\",\"notes\":null}]\n```"
	gen := &scriptedGenerator{reply: reply}
	svc := newAssistService(gen)

	tasks, raw, err := svc.ParseImage(context.Background(), "data:image/jpg;base64,"+base64.StdEncoding.EncodeToString([]byte("jpeg bytes")), "only chemistry")
	require.NoError(t, err)
	assert.Equal(t, reply, raw)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Lab report", tasks[0].Title)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, "2025-09-22", *tasks[0].DueDate)
	assert.Nil(t, tasks[0].Notes)

	require.Len(t, gen.parts, 2)
	assert.Contains(t, gen.parts[0].Text, "2025")
	assert.Contains(t, gen.parts[0].Text, "only chemistry")
	assert.Equal(t, "image/jpeg", gen.parts[1].MIMEType)
	assert.Equal(t, []byte("jpeg bytes"), gen.parts[1].Data)
}

func TestParseImageAcceptsTasksObject(t *testing.T) {
	svc := newAssistService(&scriptedGenerator{reply: `{"tasks":[{"title":"Read ch. 4"}]}`})

	tasks, _, err := svc.ParseImage(context.Background(), pngDataURL("img"), "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Read ch. 4", tasks[0].Title)
}

func TestParseImageMalformed(t *testing.T) {
	svc := newAssistService(&scriptedGenerator{reply: "I see a whiteboard with homework."})

	tasks, raw, err := svc.ParseImage(context.Background(), pngDataURL("img"), "")
	assert.Nil(t, tasks)
	assert.Equal(t, "I see a whiteboard with homework.", raw)
	require.ErrorIs(t, err, ErrMalformedAIResponse)
}
