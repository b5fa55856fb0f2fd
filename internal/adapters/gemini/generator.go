// Package gemini adapts Google's generative models to ports.Generator.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/taskmaster/planner/internal/ports"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Model is the part of llms.Model the generator needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Generator implements ports.Generator with a single-turn request.
type Generator struct {
	model Model
}

var _ ports.Generator = (*Generator)(nil)

// New creates a generator for the Gemini API. It returns nil and no error
// when apiKey is empty so callers can treat AI as not configured.
func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, nil
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return NewWithModel(client), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model Model) *Generator {
	return &Generator{model: model}
}

// Generate sends the parts as one user message and returns the first
// candidate's text.
func (g *Generator) Generate(ctx context.Context, parts ...ports.Part) (string, error) {
	content := make([]llms.ContentPart, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			content = append(content, llms.BinaryContent{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		content = append(content, llms.TextContent{Text: p.Text})
	}

	resp, err := g.model.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: content},
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	return resp.Choices[0].Content, nil
}
