package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/ports"
)

// Assist errors. The input errors map to 400 at the HTTP boundary.
var (
	ErrNoTasks             = errors.New("no tasks provided")
	ErrNoPrompt            = errors.New("no prompt provided")
	ErrNoImage             = errors.New("no image provided")
	ErrInvalidImage        = errors.New("invalid image format")
	ErrMalformedAIResponse = errors.New("failed to parse structured response from model")
)

var (
	dataURLPattern   = regexp.MustCompile(`^data:image/(png|jpg|jpeg|gif|webp);base64,(.+)$`)
	codeFencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	jsonObjectRegexp = regexp.MustCompile(`\{[\s\S]*\}`)
)

// IsInvalidInput reports whether err was caused by a bad assist request.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrNoTasks) ||
		errors.Is(err, ErrNoPrompt) ||
		errors.Is(err, ErrNoImage) ||
		errors.Is(err, ErrInvalidImage)
}

// MalformedResponseError carries the raw model output that could not be
// parsed.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrMalformedAIResponse, e.Err)
	}
	return ErrMalformedAIResponse.Error()
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedAIResponse
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// AssistService turns natural-language instructions and photos into task
// edits and task candidates.
type AssistService struct {
	generator ports.Generator
	metrics   *metrics.Metrics
	now       func() time.Time
	loc       *time.Location
	logger    *logger.Logger
}

// NewAssistService creates a new assist service. A nil generator makes every
// call fail with entities.ErrNotConfigured.
func NewAssistService(generator ports.Generator, m *metrics.Metrics, loc *time.Location, logger *logger.Logger) *AssistService {
	if loc == nil {
		loc = time.Local
	}
	return &AssistService{
		generator: generator,
		metrics:   m,
		now:       time.Now,
		loc:       loc,
		logger:    logger.WithComponent("assist_service"),
	}
}

// EditTasks asks the language model to rewrite tasks according to prompt.
func (s *AssistService) EditTasks(ctx context.Context, tasks []*entities.Task, prompt string) ([]entities.EditedTask, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrNoPrompt
	}

	edited, err := s.editTasks(ctx, tasks, prompt)
	s.metrics.ObserveAI("ai_edit", err)
	if err != nil {
		s.logger.WithError(err).Error("AI edit failed")
		return nil, err
	}
	return edited, nil
}

func (s *AssistService) editTasks(ctx context.Context, tasks []*entities.Task, prompt string) ([]entities.EditedTask, error) {
	if s.generator == nil {
		return nil, entities.ErrNotConfigured
	}

	raw, err := s.generator.Generate(ctx, ports.Part{Text: s.editPrompt(tasks, prompt)})
	if err != nil {
		return nil, fmt.Errorf("failed to generate edits: %w", err)
	}

	object := jsonObjectRegexp.FindString(raw)
	if object == "" || !gjson.Valid(object) {
		return nil, &MalformedResponseError{Raw: raw, Err: errors.New("no JSON object in response")}
	}
	list := gjson.Get(object, "editedTasks")
	if !list.IsArray() {
		return nil, &MalformedResponseError{Raw: raw, Err: errors.New("response has no editedTasks array")}
	}

	var edited []entities.EditedTask
	if err := json.Unmarshal([]byte(list.Raw), &edited); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	if edited == nil {
		edited = []entities.EditedTask{}
	}
	return edited, nil
}

func (s *AssistService) editPrompt(tasks []*entities.Task, instruction string) string {
	var b strings.Builder
	b.WriteString("You are editing a list of planner tasks. Apply the user's instruction to all tasks and return the edited tasks.\n\n")
	b.WriteString("Tasks:\n")
	for _, t := range tasks {
		if t == nil {
			continue
		}
		due := "Not set"
		if t.DueDate != nil {
			due = t.DueDate.String()
		}
		notes := "None"
		if len(t.Comments) > 0 {
			notes = strings.Join(t.Comments, "; ")
		}
		fmt.Fprintf(&b, "- ID: %s\n  Title: %s\n  Due Date: %s\n  Status: %s\n  Notes: %s\n",
			t.ID, t.Title, due, t.Status, notes)
	}
	fmt.Fprintf(&b, "\nInstruction: %s\n\n", instruction)
	b.WriteString("Rules:\n")
	b.WriteString("1. Keep the same ID for each task.\n")
	b.WriteString("2. Preserve information not mentioned in the instruction. Omit a field, or repeat its current value, to leave it unchanged; use null for dueDate only to clear it.\n")
	b.WriteString("3. When adding text to a title, place it sensibly (course codes go at the start).\n")
	b.WriteString("4. Return valid JSON only.\n\n")
	fmt.Fprintf(&b, "Today is %s. Dates use the format YYYY-MM-DD.\n", entities.Today(s.now(), s.loc))
	fmt.Fprintf(&b, "Valid statuses: %s.\n", joinStatuses())
	b.WriteString(`Respond shaped as {"editedTasks":[{"id":"...","title":"...","dueDate":"YYYY-MM-DD or null","status":"...","comments":["..."]}]}.`)
	return b.String()
}

// ParseImage extracts task candidates from an image given as a data URL.
// The raw model output is returned alongside the candidates.
func (s *AssistService) ParseImage(ctx context.Context, dataURL, instructions string) ([]entities.ParsedTask, string, error) {
	if strings.TrimSpace(dataURL) == "" {
		return nil, "", ErrNoImage
	}
	m := dataURLPattern.FindStringSubmatch(dataURL)
	if m == nil {
		return nil, "", ErrInvalidImage
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	tasks, raw, err := s.parseImage(ctx, imageMIME(m[1]), data, instructions)
	s.metrics.ObserveAI("parse_image", err)
	if err != nil {
		s.logger.WithError(err).Error("Image parsing failed")
		return nil, raw, err
	}
	return tasks, raw, nil
}

func (s *AssistService) parseImage(ctx context.Context, mime string, data []byte, instructions string) ([]entities.ParsedTask, string, error) {
	if s.generator == nil {
		return nil, "", entities.ErrNotConfigured
	}

	raw, err := s.generator.Generate(ctx,
		ports.Part{Text: s.imagePrompt(instructions)},
		ports.Part{MIMEType: mime, Data: data},
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate from image: %w", err)
	}

	tasks, err := parseCandidates(raw)
	if err != nil {
		return nil, raw, &MalformedResponseError{Raw: raw, Err: err}
	}
	return tasks, raw, nil
}

// parseCandidates accepts either a bare array or an object with a tasks
// array, optionally inside a markdown code fence.
func parseCandidates(raw string) ([]entities.ParsedTask, error) {
	body := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	if !gjson.Valid(body) {
		return nil, errors.New("response is not valid JSON")
	}

	list := gjson.Parse(body)
	if !list.IsArray() {
		list = list.Get("tasks")
	}
	if !list.IsArray() {
		return nil, errors.New("response has no task array")
	}

	var tasks []entities.ParsedTask
	if err := json.Unmarshal([]byte(list.Raw), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []entities.ParsedTask{}
	}
	return tasks, nil
}

func (s *AssistService) imagePrompt(instructions string) string {
	now := s.now().In(s.loc)
	var b strings.Builder
	b.WriteString("Extract every task, assignment or deadline visible in this image.\n")
	fmt.Fprintf(&b, "The current year is %d and today is %s (%s).\n", now.Year(), now.Format("2006-01-02"), now.Weekday())
	b.WriteString("When a date has no year, assume the current year unless that date has already passed by more than a month, then use next year.\n")
	b.WriteString("Ignore times of day; dates use the format YYYY-MM-DD.\n")
	fmt.Fprintf(&b, "Valid statuses: %s. Use \"To Do\" when unsure.\n", joinStatuses())
	if strings.TrimSpace(instructions) != "" {
		fmt.Fprintf(&b, "Additional instructions from the user: %s\n", instructions)
	}
	b.WriteString(`Respond with a JSON array only: [{"title":"...","dueDate":"YYYY-MM-DD or null","status":"...","priority":"high|medium|low or null","notes":"... or null"}]`)
	return b.String()
}

func imageMIME(ext string) string {
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}

func joinStatuses() string {
	names := make([]string, 0, len(entities.AllStatuses()))
	for _, st := range entities.AllStatuses() {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}
