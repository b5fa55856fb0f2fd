package notion

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// Property names written by the repository.
const (
	propTitle     = "Name"
	propStatus    = "Status"
	propWeekday   = "Weekdays"
	propDueDate   = "Due Date"
	propTodos     = "Todos"
	propNotes     = "Notes"
	propUserEmail = "User Email"
	propUserID    = "User ID"

	maxRichTextLen = 2000
	defaultTitle   = "Untitled"
)

type fieldKind int

const (
	fieldTitle fieldKind = iota
	fieldStatus
	fieldWeekday
	fieldDueDate
	fieldTodos
	fieldComments
)

// fieldRule says where a task field may be read from: the named properties
// in order, then optionally the first unbound property of the same type.
type fieldRule struct {
	kind     fieldKind
	typ      string
	names    []string
	fallback bool
}

var readRules = []fieldRule{
	{fieldTitle, "title", []string{"Name", "Title"}, true},
	{fieldStatus, "select", []string{"Status"}, true},
	{fieldWeekday, "select", []string{"Weekdays", "Weekday"}, false},
	{fieldDueDate, "date", []string{"Due Date", "Due"}, true},
	{fieldTodos, "rich_text", []string{"Todos", "To-dos"}, true},
	{fieldComments, "rich_text", []string{"Notes", "Comments"}, false},
}

type property struct {
	name  string
	value gjson.Result
}

// bindProperties resolves each field to a page property. Named matches are
// resolved for every field before any type fallback, so a fallback never
// takes a property another field names explicitly. Owner properties are
// never bound.
func bindProperties(props gjson.Result) map[fieldKind]gjson.Result {
	var ordered []property
	props.ForEach(func(key, value gjson.Result) bool {
		ordered = append(ordered, property{name: key.String(), value: value})
		return true
	})

	used := map[string]bool{propUserEmail: true, propUserID: true}
	bound := make(map[fieldKind]gjson.Result, len(readRules))

	for _, rule := range readRules {
	names:
		for _, name := range rule.names {
			for _, p := range ordered {
				if p.name == name && !used[p.name] && p.value.Get("type").String() == rule.typ {
					bound[rule.kind] = p.value
					used[p.name] = true
					break names
				}
			}
		}
	}

	for _, rule := range readRules {
		if _, ok := bound[rule.kind]; ok || !rule.fallback {
			continue
		}
		for _, p := range ordered {
			if !used[p.name] && p.value.Get("type").String() == rule.typ {
				bound[rule.kind] = p.value
				used[p.name] = true
				break
			}
		}
	}
	return bound
}

// pageToTask maps a Notion page object onto a task.
func pageToTask(page gjson.Result, now time.Time, loc *time.Location) *entities.Task {
	pageID := page.Get("id").String()
	bound := bindProperties(page.Get("properties"))

	task := &entities.Task{
		ID:        entities.PersistedID(pageID),
		Title:     defaultTitle,
		Status:    entities.TaskStatusToDo,
		Weekday:   entities.WeekdayNone,
		TodoItems: []entities.TodoItem{},
	}

	if created, err := time.Parse(time.RFC3339, page.Get("created_time").String()); err == nil {
		task.DateCreated = created
	}

	if p, ok := bound[fieldTitle]; ok {
		if title := plainText(p.Get("title")); strings.TrimSpace(title) != "" {
			task.Title = title
		}
	}
	if p, ok := bound[fieldStatus]; ok {
		if status, err := entities.ParseTaskStatus(p.Get("select.name").String()); err == nil {
			task.Status = status
		}
	}
	if p, ok := bound[fieldWeekday]; ok {
		if weekday, err := entities.ParseWeekday(p.Get("select.name").String()); err == nil {
			task.Weekday = weekday
		}
	}
	if p, ok := bound[fieldDueDate]; ok {
		if start := p.Get("date.start").String(); len(start) >= 10 {
			if d, err := entities.ParseDate(start[:10]); err == nil {
				task.DueDate = &d
			}
		}
	}
	if p, ok := bound[fieldTodos]; ok {
		task.TodoItems = parseTodos(pageID, plainText(p.Get("rich_text")))
	}
	if p, ok := bound[fieldComments]; ok {
		task.Comments = splitLines(plainText(p.Get("rich_text")))
	}

	task.RefreshDaysUntilDue(now, loc)
	return task
}

// pageOwner returns the owner email stored on the page, if any.
func pageOwner(page gjson.Result) string {
	return page.Get("properties." + gjsonEscape(propUserEmail) + ".email").String()
}

func gjsonEscape(name string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(name)
}

func plainText(segments gjson.Result) string {
	var b strings.Builder
	for _, seg := range segments.Array() {
		text := seg.Get("plain_text")
		if !text.Exists() {
			text = seg.Get("text.content")
		}
		b.WriteString(text.String())
	}
	return b.String()
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func parseTodos(pageID, text string) []entities.TodoItem {
	todos := []entities.TodoItem{}
	for _, line := range splitLines(text) {
		text, completed := stripTodoMarker(line)
		todos = append(todos, entities.TodoItem{
			ID:        fmt.Sprintf("%s-todo-%d", pageID, len(todos)),
			Text:      text,
			Completed: completed,
		})
	}
	return todos
}

// stripTodoMarker removes at most one leading completion marker so item text
// that itself starts with "-" or "*" survives a save and reload.
func stripTodoMarker(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, marker := range []string{"✓", "-", "*"} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest), marker == "✓"
		}
	}
	return line, false
}

func formatTodos(todos []entities.TodoItem) string {
	lines := make([]string, 0, len(todos))
	for _, t := range todos {
		marker := "-"
		if t.Completed {
			marker = "✓"
		}
		lines = append(lines, marker+" "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// richText splits content into segments Notion accepts.
func richText(content string) []map[string]any {
	segments := []map[string]any{}
	runes := []rune(content)
	for start := 0; start < len(runes); start += maxRichTextLen {
		end := min(start+maxRichTextLen, len(runes))
		segments = append(segments, map[string]any{
			"type": "text",
			"text": map[string]any{"content": string(runes[start:end])},
		})
	}
	return segments
}

// patchProperties converts the present fields of a patch into Notion
// property values.
func patchProperties(p entities.TaskPatch) map[string]any {
	props := map[string]any{}
	if p.Title.Set {
		props[propTitle] = map[string]any{"title": richText(p.Title.Value)}
	}
	if p.DueDate.Set {
		if p.DueDate.Value == nil {
			props[propDueDate] = map[string]any{"date": nil}
		} else {
			props[propDueDate] = map[string]any{"date": map[string]any{"start": p.DueDate.Value.String()}}
		}
	}
	if p.Status.Set {
		props[propStatus] = map[string]any{"select": map[string]any{"name": string(p.Status.Value)}}
	}
	if p.Weekday.Set {
		if p.Weekday.Value == "" {
			props[propWeekday] = map[string]any{"select": nil}
		} else {
			props[propWeekday] = map[string]any{"select": map[string]any{"name": string(p.Weekday.Value)}}
		}
	}
	if p.TodoItems.Set {
		props[propTodos] = map[string]any{"rich_text": richText(formatTodos(p.TodoItems.Value))}
	}
	if p.Comments.Set {
		props[propNotes] = map[string]any{"rich_text": richText(strings.Join(p.Comments.Value, "\n"))}
	}
	return props
}

// newTaskProperties builds the properties of a new page, owner included.
func newTaskProperties(t entities.NewTask, owner entities.User) map[string]any {
	patch := entities.TaskPatch{
		Title:     entities.Some(t.Title),
		DueDate:   entities.Some(t.DueDate),
		Status:    entities.Some(t.Status),
		Weekday:   entities.Some(t.Weekday),
		TodoItems: entities.Some(t.TodoItems),
	}
	if len(t.Comments) > 0 {
		patch.Comments = entities.Some(t.Comments)
	}

	props := patchProperties(patch)
	props[propUserEmail] = map[string]any{"email": owner.Email}
	if owner.UID != "" {
		props[propUserID] = map[string]any{"rich_text": richText(owner.UID)}
	}
	return props
}
