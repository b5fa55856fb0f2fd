package entities

import (
	"strings"
	"time"
)

// ParsedTask is a task candidate extracted from an image by the vision model.
type ParsedTask struct {
	Title    string  `json:"title"`
	DueDate  *string `json:"dueDate"`
	Status   string  `json:"status"`
	Priority *string `json:"priority"`
	Notes    *string `json:"notes"`
}

// Draft converts the candidate into a local draft task. Model output is
// untrusted: a missing title becomes "Untitled", an unparseable date is
// dropped and an unknown status falls back to To Do.
func (p ParsedTask) Draft(now time.Time, loc *time.Location) *Task {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Untitled"
	}

	status, err := ParseTaskStatus(p.Status)
	if err != nil {
		status = TaskStatusToDo
	}

	task := &Task{
		ID:          NewDraftID(),
		Title:       title,
		DateCreated: now,
		Status:      status,
		Weekday:     WeekdayNone,
		TodoItems:   []TodoItem{},
	}
	if p.DueDate != nil {
		if d, err := ParseDate(*p.DueDate); err == nil {
			task.DueDate = &d
		}
	}
	if p.Notes != nil && strings.TrimSpace(*p.Notes) != "" {
		task.Comments = []string{*p.Notes}
	}
	task.RefreshDaysUntilDue(now, loc)
	return task
}

// EditedTask is one element of a batch edit returned by the language model.
// DueDate and Comments distinguish an omitted key from an explicit null.
type EditedTask struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	DueDate  Field[*string]  `json:"dueDate,omitzero"`
	Status   string          `json:"status"`
	Comments Field[[]string] `json:"comments,omitzero"`
}

// Patch converts the edit into a task patch. Only an explicit null (or empty)
// due date clears the date; fields the model omitted or returned in an
// unusable shape are left out rather than guessed.
func (e EditedTask) Patch() TaskPatch {
	var p TaskPatch
	if strings.TrimSpace(e.Title) != "" {
		p.Title = Some(e.Title)
	}
	if e.DueDate.Set {
		due := e.DueDate.Value
		switch {
		case due == nil || *due == "" || strings.EqualFold(*due, "null"):
			p.DueDate = Some[*Date](nil)
		default:
			if d, err := ParseDate(*due); err == nil {
				p.DueDate = Some(&d)
			}
		}
	}
	if status, err := ParseTaskStatus(e.Status); err == nil {
		p.Status = Some(status)
	}
	if e.Comments.Set {
		comments := e.Comments.Value
		if comments == nil {
			comments = []string{}
		}
		p.Comments = Some(comments)
	}
	return p
}
