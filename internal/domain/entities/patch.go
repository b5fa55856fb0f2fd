package entities

import (
	"encoding/json"
	"errors"
	"strings"
)

// Field is an optional patch value. A Field that was never set is omitted
// from JSON; one decoded from an explicit null is set to the zero value.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

func (f Field[T]) IsZero() bool { return !f.Set }

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = v
	f.Set = true
	return nil
}

// TaskPatch carries any subset of a task's mutable fields. The id, creation
// time and the derived days-until-due counter are deliberately absent.
type TaskPatch struct {
	Title     Field[string]     `json:"title,omitzero"`
	DueDate   Field[*Date]      `json:"dueDate,omitzero"`
	Status    Field[TaskStatus] `json:"status,omitzero"`
	Weekday   Field[Weekday]    `json:"weekday,omitzero"`
	TodoItems Field[[]TodoItem] `json:"todoItems,omitzero"`
	Comments  Field[[]string]   `json:"comments,omitzero"`
}

// FullPatch returns a patch carrying every mutable field of t.
func FullPatch(t *Task) TaskPatch {
	todos := t.TodoItems
	if todos == nil {
		todos = []TodoItem{}
	}
	p := TaskPatch{
		Title:     Some(t.Title),
		DueDate:   Some(t.DueDate),
		Status:    Some(t.Status),
		TodoItems: Some(todos),
		Comments:  Some(t.Comments),
	}
	if t.Weekday != "" {
		p.Weekday = Some(t.Weekday)
	}
	return p
}

func (p TaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.DueDate.Set && !p.Status.Set &&
		!p.Weekday.Set && !p.TodoItems.Set && !p.Comments.Set
}

// Validate checks the fields that are present.
func (p TaskPatch) Validate() error {
	var errs []error
	if p.Title.Set && strings.TrimSpace(p.Title.Value) == "" {
		errs = append(errs, ErrEmptyTitle)
	}
	if p.Status.Set && !p.Status.Value.IsValid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if p.Weekday.Set && p.Weekday.Value != "" && !p.Weekday.Value.IsValid() {
		errs = append(errs, ErrInvalidWeekday)
	}
	return errors.Join(errs...)
}

// ApplyTo merges the present fields into t and reports whether the due date
// was among them. Callers own recomputing DaysUntilDue.
func (p TaskPatch) ApplyTo(t *Task) (dueChanged bool) {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.DueDate.Set {
		if p.DueDate.Value == nil {
			t.DueDate = nil
		} else {
			d := *p.DueDate.Value
			t.DueDate = &d
		}
		dueChanged = true
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Weekday.Set {
		t.Weekday = p.Weekday.Value
	}
	if p.TodoItems.Set {
		t.TodoItems = append([]TodoItem(nil), p.TodoItems.Value...)
	}
	if p.Comments.Set {
		t.Comments = append([]string(nil), p.Comments.Value...)
	}
	return dueChanged
}
