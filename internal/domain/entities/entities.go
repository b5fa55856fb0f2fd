package entities

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrNotConfigured  = errors.New("backend not configured")
	ErrDraftTask      = errors.New("draft task has no server identity")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidWeekday = errors.New("invalid weekday")
	ErrEmptyTitle     = errors.New("title must not be empty")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Enums and types
type TaskStatus string

const (
	TaskStatusReminders         TaskStatus = "Reminders"
	TaskStatusLongTermDeadlines TaskStatus = "Long Term Deadlines"
	TaskStatusToDo              TaskStatus = "To Do"
	TaskStatusDoingToday        TaskStatus = "Doing Today"
	TaskStatusDoingTomorrow     TaskStatus = "Doing Tomorrow"
	TaskStatusArchived          TaskStatus = "Archived"
)

// AllStatuses returns the workflow stages in board column order.
func AllStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusReminders,
		TaskStatusLongTermDeadlines,
		TaskStatusToDo,
		TaskStatusDoingToday,
		TaskStatusDoingTomorrow,
		TaskStatusArchived,
	}
}

type Weekday string

const (
	WeekdayNone      Weekday = "No Weekdays"
	WeekdaySunday    Weekday = "Sunday"
	WeekdayMonday    Weekday = "Monday"
	WeekdayTuesday   Weekday = "Tuesday"
	WeekdayWednesday Weekday = "Wednesday"
	WeekdayThursday  Weekday = "Thursday"
	WeekdayFriday    Weekday = "Friday"
	WeekdaySaturday  Weekday = "Saturday"
)

// AllWeekdays returns the weekday columns, unassigned first.
func AllWeekdays() []Weekday {
	return []Weekday{
		WeekdayNone,
		WeekdaySunday,
		WeekdayMonday,
		WeekdayTuesday,
		WeekdayWednesday,
		WeekdayThursday,
		WeekdayFriday,
		WeekdaySaturday,
	}
}

type ViewType string

const (
	ViewBoard    ViewType = "board"
	ViewWeekdays ViewType = "weekdays"
	ViewCalendar ViewType = "calendar"
)

// TodoItem is a single checklist entry of a task.
type TodoItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task represents a planner task.
type Task struct {
	ID           TaskID     `json:"id"`
	Title        string     `json:"title"`
	DueDate      *Date      `json:"dueDate,omitempty"`
	DateCreated  time.Time  `json:"dateCreated"`
	Status       TaskStatus `json:"status"`
	Weekday      Weekday    `json:"weekday,omitempty"`
	DaysUntilDue *int       `json:"daysUntilDue,omitempty"`
	TodoItems    []TodoItem `json:"todoItems"`
	Comments     []string   `json:"comments,omitempty"`
}

// NewTask is the payload used to create a task on the server.
type NewTask struct {
	Title     string     `json:"title" validate:"max=2000"`
	DueDate   *Date      `json:"dueDate,omitempty"`
	Status    TaskStatus `json:"status,omitempty" validate:"omitempty,task_status"`
	Weekday   Weekday    `json:"weekday,omitempty" validate:"omitempty,weekday"`
	TodoItems []TodoItem `json:"todoItems"`
	Comments  []string   `json:"comments,omitempty"`
}

// User is the identity extracted from a verified ID token.
type User struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.DaysUntilDue != nil {
		n := *t.DaysUntilDue
		c.DaysUntilDue = &n
	}
	if t.TodoItems != nil {
		c.TodoItems = append(make([]TodoItem, 0, len(t.TodoItems)), t.TodoItems...)
	}
	if t.Comments != nil {
		c.Comments = append(make([]string, 0, len(t.Comments)), t.Comments...)
	}
	return &c
}

// IsDraft reports whether the task exists only locally.
func (t *Task) IsDraft() bool {
	return t.ID.IsDraft()
}

// RefreshDaysUntilDue recomputes the derived due counter.
func (t *Task) RefreshDaysUntilDue(now time.Time, loc *time.Location) {
	t.DaysUntilDue = DaysUntilDue(t.DueDate, now, loc)
}

// NewTaskFrom builds the create payload carrying the full field set of t.
func NewTaskFrom(t *Task) NewTask {
	todos := t.TodoItems
	if todos == nil {
		todos = []TodoItem{}
	}
	return NewTask{
		Title:     t.Title,
		DueDate:   t.DueDate,
		Status:    t.Status,
		Weekday:   t.Weekday,
		TodoItems: todos,
		Comments:  t.Comments,
	}
}

// Utility methods
func (s TaskStatus) IsValid() bool {
	for _, v := range AllStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// ParseTaskStatus returns the status named s.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (w Weekday) IsValid() bool {
	for _, v := range AllWeekdays() {
		if w == v {
			return true
		}
	}
	return false
}

// ParseWeekday returns the weekday named s.
func ParseWeekday(s string) (Weekday, error) {
	weekday := Weekday(s)
	if !weekday.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
	}
	return weekday, nil
}

func (v ViewType) IsValid() bool {
	switch v {
	case ViewBoard, ViewWeekdays, ViewCalendar:
		return true
	}
	return false
}
