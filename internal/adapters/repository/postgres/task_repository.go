package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

const taskColumns = `id, owner_uid, owner_email, title, due_date, status, weekday,
	todo_items, comments, created_at, updated_at`

// jsonColumn stores a value as a JSONB column.
type jsonColumn[T any] struct {
	V T
}

func (c jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *jsonColumn[T]) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		var zero T
		c.V = zero
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	return json.Unmarshal(b, &c.V)
}

type taskRow struct {
	ID         string                         `db:"id"`
	OwnerUID   string                         `db:"owner_uid"`
	OwnerEmail string                         `db:"owner_email"`
	Title      string                         `db:"title"`
	DueDate    sql.NullTime                   `db:"due_date"`
	Status     string                         `db:"status"`
	Weekday    string                         `db:"weekday"`
	TodoItems  jsonColumn[[]entities.TodoItem] `db:"todo_items"`
	Comments   jsonColumn[[]string]           `db:"comments"`
	CreatedAt  time.Time                      `db:"created_at"`
	UpdatedAt  time.Time                      `db:"updated_at"`
}

func (row taskRow) toTask(now time.Time, loc *time.Location) *entities.Task {
	task := &entities.Task{
		ID:          entities.PersistedID(row.ID),
		Title:       row.Title,
		DateCreated: row.CreatedAt,
		Status:      entities.TaskStatus(row.Status),
		Weekday:     entities.Weekday(row.Weekday),
		TodoItems:   row.TodoItems.V,
		Comments:    row.Comments.V,
	}
	if !task.Status.IsValid() {
		task.Status = entities.TaskStatusToDo
	}
	if !task.Weekday.IsValid() {
		task.Weekday = entities.WeekdayNone
	}
	if task.TodoItems == nil {
		task.TodoItems = []entities.TodoItem{}
	}
	if row.DueDate.Valid {
		// DATE columns come back as UTC midnight.
		d := entities.DateOf(row.DueDate.Time.UTC())
		task.DueDate = &d
	}
	task.RefreshDaysUntilDue(now, loc)
	return task
}

func dateValue(d *entities.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// withTodoIDs assigns ids to checklist entries that have none.
func withTodoIDs(items []entities.TodoItem) []entities.TodoItem {
	out := make([]entities.TodoItem, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		out[i] = item
	}
	return out
}

// TaskRepository implements ports.TaskRepository on PostgreSQL.
type TaskRepository struct {
	db     *sqlx.DB
	now    func() time.Time
	loc    *time.Location
	logger *logger.Logger
}

var (
	_ ports.TaskRepository = (*TaskRepository)(nil)
	_ ports.HealthChecker  = (*TaskRepository)(nil)
)

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sqlx.DB, loc *time.Location, log *logger.Logger) *TaskRepository {
	if loc == nil {
		loc = time.Local
	}
	return &TaskRepository{db: db, now: time.Now, loc: loc, logger: log.WithComponent("postgres_repository")}
}

func (r *TaskRepository) logQuery(query string, start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	r.logger.LogDatabaseQuery(query, float64(time.Since(start).Milliseconds()), err)
}

func (r *TaskRepository) List(ctx context.Context, owner entities.User) ([]*entities.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_email = $1 AND NOT archived
		ORDER BY updated_at DESC`

	start := time.Now()
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, query, owner.Email)
	r.logQuery(query, start, err)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	now := r.now()
	tasks := make([]*entities.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask(now, r.loc))
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, owner entities.User, id string) (*entities.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entities.ErrTaskNotFound
	}

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND owner_email = $2 AND NOT archived`

	start := time.Now()
	var row taskRow
	err := r.db.GetContext(ctx, &row, query, id, owner.Email)
	r.logQuery(query, start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return row.toTask(r.now(), r.loc), nil
}

func (r *TaskRepository) Create(ctx context.Context, owner entities.User, task entities.NewTask) (*entities.Task, error) {
	query := `
		INSERT INTO tasks (id, owner_uid, owner_email, title, due_date, status, weekday, todo_items, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + taskColumns

	comments := task.Comments
	if comments == nil {
		comments = []string{}
	}

	start := time.Now()
	var row taskRow
	err := r.db.GetContext(ctx, &row, query,
		uuid.NewString(), owner.UID, owner.Email, task.Title, dateValue(task.DueDate),
		string(task.Status), string(task.Weekday),
		jsonColumn[[]entities.TodoItem]{V: withTodoIDs(task.TodoItems)},
		jsonColumn[[]string]{V: comments},
	)
	r.logQuery(query, start, err)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return row.toTask(r.now(), r.loc), nil
}

// buildUpdate renders the SET list for the present patch fields. Arguments
// start at $1; the id and owner follow them.
func buildUpdate(patch entities.TaskPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title.Set {
		add("title", patch.Title.Value)
	}
	if patch.DueDate.Set {
		add("due_date", dateValue(patch.DueDate.Value))
	}
	if patch.Status.Set {
		add("status", string(patch.Status.Value))
	}
	if patch.Weekday.Set {
		add("weekday", string(patch.Weekday.Value))
	}
	if patch.TodoItems.Set {
		add("todo_items", jsonColumn[[]entities.TodoItem]{V: withTodoIDs(patch.TodoItems.Value)})
	}
	if patch.Comments.Set {
		comments := patch.Comments.Value
		if comments == nil {
			comments = []string{}
		}
		add("comments", jsonColumn[[]string]{V: comments})
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	return strings.Join(sets, ", "), args
}

func (r *TaskRepository) Update(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entities.ErrTaskNotFound
	}
	if patch.IsEmpty() {
		return r.Get(ctx, owner, id)
	}

	set, args := buildUpdate(patch)
	args = append(args, id, owner.Email)
	query := fmt.Sprintf(`
		UPDATE tasks SET %s
		WHERE id = $%d AND owner_email = $%d AND NOT archived
		RETURNING %s`, set, len(args)-1, len(args), taskColumns)

	start := time.Now()
	var row taskRow
	err := r.db.GetContext(ctx, &row, query, args...)
	r.logQuery(query, start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return row.toTask(r.now(), r.loc), nil
}

func (r *TaskRepository) Archive(ctx context.Context, owner entities.User, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entities.ErrTaskNotFound
	}

	query := `
		UPDATE tasks SET archived = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND owner_email = $2 AND NOT archived`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query, id, owner.Email)
	r.logQuery(query, start, err)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	if affected == 0 {
		return entities.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
