package commands

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/planner/internal/adapters/client"
	"github.com/taskmaster/planner/internal/application/intake"
	"github.com/taskmaster/planner/internal/application/planner"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

// taskEnv is what the task commands run against.
type taskEnv struct {
	store  *planner.Store
	assist ports.AssistClient
	loc    *time.Location
	now    func() time.Time
}

type envFactory func(ctx context.Context) (*taskEnv, error)

// NewTasksCommand creates the task management command. It talks to a running
// planner server configured through PLANNER_API_URL and the identity tokens.
func NewTasksCommand() *cobra.Command {
	return newTasksCommand(remoteEnv)
}

func remoteEnv(ctx context.Context) (*taskEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(config.LoggerConfig{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ts := client.TokenSource(cfg.Firebase.APIKey, cfg.Client.IDToken, cfg.Client.RefreshToken)
	api := client.New(cfg.Client.APIURL, ts, cfg.Client.Timeout, log)

	return &taskEnv{
		store:  planner.New(api, log, planner.WithLocation(loc)),
		assist: api,
		loc:    loc,
		now:    time.Now,
	}, nil
}

func newTasksCommand(newEnv envFactory) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage your tasks",
		Long:  "List, create, edit and archive tasks, and use the AI assistants, against a running planner server",
	}

	tasksCmd.AddCommand(
		newListCommand(newEnv),
		newAddCommand(newEnv),
		newEditCommand(newEnv),
		newMoveCommand(newEnv),
		newTodoCommand(newEnv),
		newRemoveCommand(newEnv),
		newImportImageCommand(newEnv),
		newAIEditCommand(newEnv),
	)
	return tasksCmd
}

// loaded builds the environment and loads the caller's tasks.
func loaded(cmd *cobra.Command, newEnv envFactory) (*taskEnv, error) {
	env, err := newEnv(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := env.store.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return env, nil
}

// find resolves an id argument, accepting a unique prefix of a task id.
func (env *taskEnv) find(arg string) (*entities.Task, error) {
	id := entities.ParseTaskID(arg)
	if task, ok := env.store.Task(id); ok {
		return task, nil
	}

	var match *entities.Task
	for _, t := range env.store.Tasks() {
		if strings.HasPrefix(t.ID.String(), arg) {
			if match != nil {
				return nil, fmt.Errorf("task id %q is ambiguous", arg)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %q: %w", arg, entities.ErrTaskNotFound)
	}
	return match, nil
}

// apply updates the task locally and sends the changed fields.
func (env *taskEnv) apply(ctx context.Context, id entities.TaskID, patch entities.TaskPatch) (*entities.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	env.store.UpdateTask(id, patch)
	if err := env.store.SubmitPartial(ctx, id, patch); err != nil {
		return nil, err
	}
	task, _ := env.store.Task(id)
	return task, nil
}

func parseDueFlag(s string) (*entities.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := entities.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func newListCommand(newEnv envFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks grouped by the chosen view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _ := cmd.Flags().GetString("view")
			v := entities.ViewType(view)
			if !v.IsValid() {
				return fmt.Errorf("unknown view %q (board, weekdays, calendar)", view)
			}

			env, err := loaded(cmd, newEnv)
			if err != nil {
				return err
			}
			env.store.SetCurrentView(v)
			env.store.RefreshDaysUntilDue()
			renderView(cmd.OutOrStdout(), env.store.CurrentView(), env.store.Tasks())
			return nil
		},
	}
	cmd.Flags().String("view", string(entities.ViewBoard), "View to render: board, weekdays or calendar")
	return cmd
}

func newAddCommand(newEnv envFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}

			due, _ := cmd.Flags().GetString("due")
			status, _ := cmd.Flags().GetString("status")
			weekday, _ := cmd.Flags().GetString("weekday")
			todos, _ := cmd.Flags().GetStringArray("todo")
			notes, _ := cmd.Flags().GetStringArray("note")

			draft := &entities.Task{
				Title:       strings.Join(args, " "),
				DateCreated: env.now(),
				TodoItems:   []entities.TodoItem{},
				Comments:    notes,
			}
			if draft.DueDate, err = parseDueFlag(due); err != nil {
				return err
			}
			if draft.Status, err = entities.ParseTaskStatus(status); err != nil {
				return err
			}
			if draft.Weekday, err = entities.ParseWeekday(weekday); err != nil {
				return err
			}
			for _, text := range todos {
				draft.TodoItems = append(draft.TodoItems, entities.TodoItem{Text: text})
			}
			draft.RefreshDaysUntilDue(env.now(), env.loc)

			id := env.store.AddTask(draft)
			draft.ID = id
			env.store.SetSelectedTask(draft)
			if err := env.store.SubmitTask(cmd.Context(), id); err != nil {
				return err
			}

			created := env.store.SelectedTask()
			if created == nil || created.IsDraft() {
				return errors.New("task was not created")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", renderTaskLine(created))
			return nil
		},
	}
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().String("status", string(entities.TaskStatusToDo), "Workflow stage")
	cmd.Flags().String("weekday", string(entities.WeekdayNone), "Weekday column")
	cmd.Flags().StringArray("todo", nil, "Checklist entry (repeatable)")
	cmd.Flags().StringArray("note", nil, "Note line (repeatable)")
	return cmd
}

func newEditCommand(newEnv envFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title, due date or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loaded(cmd, newEnv)
			if err != nil {
				return err
			}
			task, err := env.find(args[0])
			if err != nil {
				return err
			}

			var patch entities.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				title, _ := flags.GetString("title")
				patch.Title = entities.Some(title)
			}
			if clearDue, _ := flags.GetBool("clear-due"); clearDue {
				patch.DueDate = entities.Some[*entities.Date](nil)
			} else if flags.Changed("due") {
				due, _ := flags.GetString("due")
				d, err := parseDueFlag(due)
				if err != nil {
					return err
				}
				patch.DueDate = entities.Some(d)
			}
			if flags.Changed("note") {
				notes, _ := flags.GetStringArray("note")
				patch.Comments = entities.Some(notes)
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change; pass --title, --due, --clear-due or --note")
			}

			updated, err := env.apply(cmd.Context(), task.ID, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", renderTaskLine(updated))
			return nil
		},
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("due", "", "New due date (YYYY-MM-DD)")
	cmd.Flags().Bool("clear-due", false, "Remove the due date")
	cmd.Flags().StringArray("note", nil, "Replace notes with these lines (repeatable)")
	return cmd
}

func newMoveCommand(newEnv envFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a task to another status or weekday column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch entities.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("status") {
				s, _ := flags.GetString("status")
				status, err := entities.ParseTaskStatus(s)
				if err != nil {
					return err
				}
				patch.Status = entities.Some(status)
			}
			if flags.Changed("weekday") {
				w, _ := flags.GetString("weekday")
				weekday, err := entities.ParseWeekday(w)
				if err != nil {
					return err
				}
				patch.Weekday = entities.Some(weekday)
			}
			if patch.IsEmpty() {
				return errors.New("pass --status or --weekday")
			}

			env, err := loaded(cmd, newEnv)
			if err != nil {
				return err
			}
			task, err := env.find(args[0])
			if err != nil {
				return err
			}
			updated, err := env.apply(cmd.Context(), task.ID, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s\n", renderTaskLine(updated))
			return nil
		},
	}
	cmd.Flags().String("status", "", "Target workflow stage")
	cmd.Flags().String("weekday", "", "Target weekday column")
	return cmd
}

func newTodoCommand(newEnv envFactory) *cobra.Command {
	todoCmd := &cobra.Command{
		Use:   "todo",
		Short: "Edit a task's checklist",
	}

	// edit loads the task, lets fn rewrite its checklist and sends it.
	edit := func(cmd *cobra.Command, arg string, fn func([]entities.TodoItem) ([]entities.TodoItem, error)) error {
		env, err := loaded(cmd, newEnv)
		if err != nil {
			return err
		}
		task, err := env.find(arg)
		if err != nil {
			return err
		}
		items, err := fn(append([]entities.TodoItem{}, task.TodoItems...))
		if err != nil {
			return err
		}
		updated, err := env.apply(cmd.Context(), task.ID, entities.TaskPatch{TodoItems: entities.Some(items)})
		if err != nil {
			return err
		}
		renderTodos(cmd.OutOrStdout(), updated)
		return nil
	}

	index := func(items []entities.TodoItem, arg string) (int, error) {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(items) {
			return 0, fmt.Errorf("checklist entry %q out of range (1-%d)", arg, len(items))
		}
		return n - 1, nil
	}

	todoCmd.AddCommand(
		&cobra.Command{
			Use:   "add <id> <text>",
			Short: "Append a checklist entry",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return edit(cmd, args[0], func(items []entities.TodoItem) ([]entities.TodoItem, error) {
					return append(items, entities.TodoItem{Text: strings.Join(args[1:], " ")}), nil
				})
			},
		},
		&cobra.Command{
			Use:   "toggle <id> <n>",
			Short: "Flip the completed flag of entry n",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return edit(cmd, args[0], func(items []entities.TodoItem) ([]entities.TodoItem, error) {
					i, err := index(items, args[1])
					if err != nil {
						return nil, err
					}
					items[i].Completed = !items[i].Completed
					return items, nil
				})
			},
		},
		&cobra.Command{
			Use:   "rm <id> <n>",
			Short: "Remove entry n",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return edit(cmd, args[0], func(items []entities.TodoItem) ([]entities.TodoItem, error) {
					i, err := index(items, args[1])
					if err != nil {
						return nil, err
					}
					return append(items[:i], items[i+1:]...), nil
				})
			},
		},
	)
	return todoCmd
}

func newRemoveCommand(newEnv envFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"archive"},
		Short:   "Archive a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loaded(cmd, newEnv)
			if err != nil {
				return err
			}
			task, err := env.find(args[0])
			if err != nil {
				return err
			}
			if err := env.store.DeleteTask(cmd.Context(), task.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", renderTaskLine(task))
			return nil
		},
	}
}

// imageDataURL encodes an image file as a base64 data URL.
func imageDataURL(data []byte) (string, error) {
	mime := http.DetectContentType(data)
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		return "", fmt.Errorf("unsupported image type %s", mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func newImportImageCommand(newEnv envFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-image <file>",
		Short: "Extract tasks from a photo or screenshot and confirm them one by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			dataURL, err := imageDataURL(data)
			if err != nil {
				return err
			}
			instructions, _ := cmd.Flags().GetString("instructions")
			yes, _ := cmd.Flags().GetBool("yes")

			env, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}

			candidates, err := env.assist.ParseImage(cmd.Context(), dataURL, instructions)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintln(out, "No tasks found in the image")
				return nil
			}
			fmt.Fprintf(out, "Found %d task(s)\n", len(candidates))

			importer := intake.NewImporter(env.store, env.now, env.loc)
			confirm := promptConfirm(env.store, cmd.InOrStdin(), out, yes)
			res, err := importer.Run(cmd.Context(), intake.NewQueue(candidates), confirm)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Created %d, skipped %d", len(res.Created), res.Rejected)
			if res.Failed > 0 {
				fmt.Fprintf(out, ", failed %d", res.Failed)
			}
			fmt.Fprintln(out)
			if res.Failed > 0 {
				return fmt.Errorf("%d task(s) could not be created", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().String("instructions", "", "Extra instructions for the vision model")
	cmd.Flags().BoolP("yes", "y", false, "Accept every extracted task without asking")
	return cmd
}

// promptConfirm asks on in for each draft: y accepts, n skips, q stops.
func promptConfirm(store *planner.Store, in io.Reader, out io.Writer, yes bool) intake.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, id entities.TaskID, remaining int) (intake.Decision, error) {
		task, ok := store.Task(id)
		if !ok {
			return intake.Reject, nil
		}
		fmt.Fprintf(out, "\n%s\n", renderTaskLine(task))
		if yes {
			return intake.Accept, nil
		}

		for {
			fmt.Fprintf(out, "Create this task? (%d left) [y/n/q]: ", remaining)
			line, err := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			switch answer {
			case "y", "yes":
				return intake.Accept, nil
			case "n", "no":
				return intake.Reject, nil
			case "q", "quit":
				return intake.Cancel, nil
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return intake.Cancel, nil
				}
				return intake.Cancel, err
			}
		}
	}
}

func newAIEditCommand(newEnv envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ai-edit <instruction>",
		Short: "Apply a natural-language edit to all tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loaded(cmd, newEnv)
			if err != nil {
				return err
			}
			tasks := env.store.Tasks()
			if len(tasks) == 0 {
				return errors.New("no tasks to edit")
			}

			edits, err := env.assist.EditTasks(cmd.Context(), tasks, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var applied, failed int
			for _, edit := range edits {
				id := entities.ParseTaskID(edit.ID)
				if !env.store.UpdateTask(id, edit.Patch()) {
					continue
				}
				if err := env.store.SubmitTask(cmd.Context(), id); err != nil {
					failed++
					fmt.Fprintf(out, "Failed to save %s: %v\n", edit.ID, err)
					continue
				}
				applied++
				if task, ok := env.store.Task(id); ok {
					fmt.Fprintf(out, "Updated %s\n", renderTaskLine(task))
				}
			}

			fmt.Fprintf(out, "%d of %d task(s) updated\n", applied, len(edits))
			if failed > 0 {
				return fmt.Errorf("%d task(s) could not be saved", failed)
			}
			return nil
		},
	}
}
