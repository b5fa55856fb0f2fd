package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskmaster/planner/internal/domain/entities"
)

var (
	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	soonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))
)

// renderView prints tasks grouped the way the chosen view lays them out.
func renderView(w io.Writer, view entities.ViewType, tasks []*entities.Task) {
	switch view {
	case entities.ViewWeekdays:
		renderWeekdays(w, tasks)
	case entities.ViewCalendar:
		renderCalendar(w, tasks)
	default:
		renderBoard(w, tasks)
	}
}

func renderBoard(w io.Writer, tasks []*entities.Task) {
	byStatus := make(map[entities.TaskStatus][]*entities.Task)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	for _, status := range entities.AllStatuses() {
		if status == entities.TaskStatusArchived && len(byStatus[status]) == 0 {
			continue
		}
		renderColumn(w, string(status), byStatus[status])
	}
}

func renderWeekdays(w io.Writer, tasks []*entities.Task) {
	byDay := make(map[entities.Weekday][]*entities.Task)
	for _, t := range tasks {
		day := t.Weekday
		if !day.IsValid() {
			day = entities.WeekdayNone
		}
		byDay[day] = append(byDay[day], t)
	}
	for _, day := range entities.AllWeekdays() {
		renderColumn(w, string(day), byDay[day])
	}
}

// renderCalendar lists dated tasks by due date, then the undated ones.
func renderCalendar(w io.Writer, tasks []*entities.Task) {
	var dated, undated []*entities.Task
	for _, t := range tasks {
		if t.DueDate != nil {
			dated = append(dated, t)
		} else {
			undated = append(undated, t)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].DueDate.Before(*dated[j].DueDate)
	})

	var current string
	for _, t := range dated {
		day := t.DueDate.String()
		if day != current {
			fmt.Fprintln(w, columnStyle.Render(fmt.Sprintf("%s %s", day, t.DueDate.Weekday())))
			current = day
		}
		fmt.Fprintf(w, "  %s\n", renderTaskLine(t))
	}
	if len(undated) > 0 {
		renderColumn(w, "No due date", undated)
	}
}

func renderColumn(w io.Writer, title string, tasks []*entities.Task) {
	fmt.Fprintln(w, columnStyle.Render(fmt.Sprintf("%s (%d)", title, len(tasks))))
	if len(tasks) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  -"))
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "  %s\n", renderTaskLine(t))
	}
}

// renderTaskLine renders "<id>  <title>  <due>  [done/total]".
func renderTaskLine(t *entities.Task) string {
	parts := []string{dimStyle.Render(shortID(t.ID)), t.Title}
	if due := renderDue(t); due != "" {
		parts = append(parts, due)
	}
	if n := len(t.TodoItems); n > 0 {
		done := 0
		for _, item := range t.TodoItems {
			if item.Completed {
				done++
			}
		}
		parts = append(parts, dimStyle.Render(fmt.Sprintf("[%d/%d]", done, n)))
	}
	return strings.Join(parts, "  ")
}

func renderDue(t *entities.Task) string {
	if t.DueDate == nil {
		return ""
	}
	label := "due " + t.DueDate.String()
	if t.DaysUntilDue == nil {
		return label
	}
	switch days := *t.DaysUntilDue; {
	case days < 0:
		return overdueStyle.Render(fmt.Sprintf("%s (%d days overdue)", label, -days))
	case days == 0:
		return soonStyle.Render(label + " (today)")
	case days == 1:
		return soonStyle.Render(label + " (tomorrow)")
	default:
		return fmt.Sprintf("%s (in %d days)", label, days)
	}
}

func renderTodos(w io.Writer, t *entities.Task) {
	fmt.Fprintln(w, renderTaskLine(t))
	for i, item := range t.TodoItems {
		mark := "[ ]"
		text := item.Text
		if item.Completed {
			mark = "[x]"
			text = dimStyle.Render(text)
		}
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, mark, text)
	}
}

// shortID trims server ids to eight characters; any unique prefix is
// accepted back by the commands.
func shortID(id entities.TaskID) string {
	s := id.String()
	if id.IsDraft() || len(s) <= 8 {
		return s
	}
	return s[:8]
}
