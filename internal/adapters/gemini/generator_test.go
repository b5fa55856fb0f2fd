package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/taskmaster/planner/internal/ports"
)

type recordingModel struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func TestGenerateMixesTextAndImage(t *testing.T) {
	model := &recordingModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: `[{"title":"Lab"}]`}},
	}}
	g := NewWithModel(model)

	out, err := g.Generate(context.Background(),
		ports.Part{Text: "extract tasks"},
		ports.Part{MIMEType: "image/png", Data: []byte{0x89, 0x50}},
	)
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Lab"}]`, out)

	require.Len(t, model.messages, 1)
	msg := model.messages[0]
	assert.Equal(t, llms.ChatMessageTypeHuman, msg.Role)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, llms.TextContent{Text: "extract tasks"}, msg.Parts[0])
	assert.Equal(t, llms.BinaryContent{MIMEType: "image/png", Data: []byte{0x89, 0x50}}, msg.Parts[1])
}

func TestGenerateErrors(t *testing.T) {
	_, err := NewWithModel(&recordingModel{err: errors.New("quota")}).Generate(context.Background(), ports.Part{Text: "x"})
	assert.ErrorContains(t, err, "quota")

	_, err = NewWithModel(&recordingModel{resp: &llms.ContentResponse{}}).Generate(context.Background(), ports.Part{Text: "x"})
	assert.ErrorContains(t, err, "no candidates")
}

func TestNewWithoutKey(t *testing.T) {
	g, err := New(context.Background(), " ", "")
	require.NoError(t, err)
	assert.Nil(t, g)
}
